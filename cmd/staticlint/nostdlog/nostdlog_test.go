package nostdlog_test

import (
	"testing"

	"github.com/Totarae/shortlink/cmd/staticlint/nostdlog"
	"golang.org/x/tools/go/analysis/analysistest"
)

func TestAnalyzer(t *testing.T) {
	analysistest.Run(t, analysistest.TestData(), nostdlog.Analyzer, "svc", "mainpkg")
}
