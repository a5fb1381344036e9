// Command pagewatch monitors web pages for text changes.
package main

import "github.com/JakeFAU/pagewatch/cmd"

func main() {
	cmd.Execute()
}
