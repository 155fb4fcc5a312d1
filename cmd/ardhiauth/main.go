package main

import "github.com/PMGEECODE/ArdhiAssets-sub001/cmd/ardhiauth/cmd"

func main() {
	cmd.Execute()
}
