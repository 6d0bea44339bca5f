package main

import (
	"fmt"
	"os"
)

func helper() {
	os.Exit(2)
}

func main() {
	defer fmt.Println("never printed")
	exit := func() { os.Exit(3) }
	_ = exit
	helper()
	os.Exit(1) // want "вызов os.Exit в функции main запрещён"
}
