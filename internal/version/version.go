package version

import "fmt"

// Заполняются на сборке через -ldflags -X.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает собранный бинарник.
type Build struct {
	Version string
	Commit  string
	Date    string
}

// String возвращает сведения о сборке одной строкой для логов и /healthz.
func (b Build) String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", b.Version, b.Commit, b.Date)
}

// Current возвращает сведения о текущей сборке.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date}
}

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) {
	b := Current()
	return b.Version, b.Commit, b.Date
}

// String — сокращение для Current().String().
func String() string {
	return Current().String()
}
