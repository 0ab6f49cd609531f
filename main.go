package main

import "github.com/lockplane/changeplane/cmd"

func main() {
	cmd.Execute()
}
