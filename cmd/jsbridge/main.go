package main

import (
	"log"

	"github.com/jsbridge/jsbridge/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		log.Printf("Failed to execute command due to error: %s", err.Error())
	}
}
