package main

import "github.com/aarthig0611/face-recognition-app/cmd"

func main() {
	cmd.Execute()
}
