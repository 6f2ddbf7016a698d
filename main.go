package main

import "github.com/j0rgje/KDVcontactscraper/cmd"

func main() {
	cmd.Execute()
}
