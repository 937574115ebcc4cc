package main

import (
	"log"
	"os"

	"example.com/fdms/services/admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
