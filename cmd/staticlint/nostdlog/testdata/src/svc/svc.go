package svc

import (
	"log"
	"os"
)

func Run() {
	log.Printf("starting") // want "используйте zap вместо log.Printf"
	l := log.New(os.Stderr, "", 0)
	l.Println("explicit logger is fine")
	log.Fatal("boom") // want "используйте zap вместо log.Fatal"
}
