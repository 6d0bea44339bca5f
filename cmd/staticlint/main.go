// Package main собирает multichecker для кода сервиса коротких ссылок.
//
// Набор подобран под то, чем сервис рискует: утечки контекстов и тел
// HTTP-ответов, копирование мьютексов хранилища, ошибки разбора JSON
// журнала и запросов, прямой os.Exit и стандартный log в обход zap.
//
// Запуск:
//
//	go run ./cmd/staticlint ./...
package main

import (
	"strings"

	"github.com/timakin/bodyclose/passes/bodyclose"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/atomic"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/errorsas"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/nilness"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/shadow"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unusedresult"
	"honnef.co/go/tools/analysis/lint"
	"honnef.co/go/tools/simple"
	"honnef.co/go/tools/staticcheck"
	"honnef.co/go/tools/stylecheck"
	"honnef.co/go/tools/unused"

	"github.com/Totarae/shortlink/cmd/staticlint/noexit"
	"github.com/Totarae/shortlink/cmd/staticlint/nostdlog"
)

// styleChecks проверки stylecheck, которые код уже соблюдает:
// ST1005 текст ошибок, ST1012 имена Err*, ST1016 имена получателей,
// ST1019 повторные импорты.
var styleChecks = map[string]bool{
	"ST1005": true,
	"ST1012": true,
	"ST1016": true,
	"ST1019": true,
}

// simpleChecks упрощения из набора simple.
var simpleChecks = map[string]bool{
	"S1000": true, // select с одной веткой
	"S1002": true, // сравнение bool с константой
	"S1008": true, // if-return bool
	"S1011": true, // append через цикл
	"S1021": true, // объявление и присваивание функции
}

func main() {
	analyzers := []*analysis.Analyzer{
		lostcancel.Analyzer,
		copylock.Analyzer,
		errorsas.Analyzer,
		httpresponse.Analyzer,
		unmarshal.Analyzer,
		unusedresult.Analyzer,
		atomic.Analyzer,
		nilness.Analyzer,
		printf.Analyzer,
		shadow.Analyzer,
		structtag.Analyzer,

		bodyclose.Analyzer,
		unused.Analyzer.Analyzer,

		noexit.Analyzer,
		nostdlog.Analyzer,
	}

	analyzers = appendMatching(analyzers, staticcheck.Analyzers, func(name string) bool {
		return strings.HasPrefix(name, "SA")
	})
	analyzers = appendMatching(analyzers, simple.Analyzers, func(name string) bool { return simpleChecks[name] })
	analyzers = appendMatching(analyzers, stylecheck.Analyzers, func(name string) bool { return styleChecks[name] })

	multichecker.Main(analyzers...)
}

func appendMatching(dst []*analysis.Analyzer, src []*lint.Analyzer, keep func(string) bool) []*analysis.Analyzer {
	for _, a := range src {
		if keep(a.Analyzer.Name) {
			dst = append(dst, a.Analyzer)
		}
	}
	return dst
}
