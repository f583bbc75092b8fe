package main

import "github.com/crystaldolphin/ctxbudget/cmd"

func main() {
	cmd.Execute()
}
