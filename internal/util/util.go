// Package util содержит генератор коротких кодов.
package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet алфавит коротких кодов без визуально похожих символов (0/O, 1/l/I).
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// DefaultCodeLength длина кода по умолчанию.
const DefaultCodeLength = 6

// CodeGenerator выдаёт случайные коды фиксированной длины.
type CodeGenerator struct {
	length int
}

// NewCodeGenerator создаёт генератор; length <= 0 означает длину по умолчанию.
func NewCodeGenerator(length int) *CodeGenerator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &CodeGenerator{length: length}
}

// Generate возвращает новый код. Источник случайности криптостойкий;
// его отказ считается фатальным для процесса, поэтому здесь паника.
func (g *CodeGenerator) Generate() string {
	return gonanoid.MustGenerate(Alphabet, g.length)
}

// Length длина выдаваемых кодов.
func (g *CodeGenerator) Length() int {
	return g.length
}

