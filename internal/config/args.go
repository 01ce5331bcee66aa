package config

import (
	"flag"
	"fmt"
	"strings"
)

// Args summarizes the command-line flags cmd/lnavcore accepts, mirroring
// the flag-struct-plus-String() pattern dtail's cmd/dgrep uses.
type Args struct {
	What           string
	RegexStr       string
	RegexInvert    bool
	ConfigFile     string
	MaxBufferBytes int
	TimestampMode  string
	ScratchDir     string
	LogLevel       string
	Quiet          bool
	NoColor        bool
	PprofAddr      string
}

func (a *Args) String() string {
	var sb strings.Builder
	sb.WriteString("Args(")
	fmt.Fprintf(&sb, "What:%q,", a.What)
	fmt.Fprintf(&sb, "RegexStr:%q,", a.RegexStr)
	fmt.Fprintf(&sb, "RegexInvert:%v,", a.RegexInvert)
	fmt.Fprintf(&sb, "ConfigFile:%q,", a.ConfigFile)
	fmt.Fprintf(&sb, "MaxBufferBytes:%d,", a.MaxBufferBytes)
	fmt.Fprintf(&sb, "TimestampMode:%q,", a.TimestampMode)
	fmt.Fprintf(&sb, "ScratchDir:%q,", a.ScratchDir)
	fmt.Fprintf(&sb, "LogLevel:%q,", a.LogLevel)
	fmt.Fprintf(&sb, "Quiet:%v,", a.Quiet)
	fmt.Fprintf(&sb, "NoColor:%v", a.NoColor)
	sb.WriteString(")")
	return sb.String()
}

// ParseArgs registers and parses the standard flag set, mirroring
// dtail's cmd/dgrep/main.go flag wiring.
func ParseArgs() *Args {
	a := &Args{}

	flag.StringVar(&a.RegexStr, "e", "", "pattern to search for")
	flag.BoolVar(&a.RegexInvert, "v", false, "invert match")
	flag.StringVar(&a.ConfigFile, "cfg", "", "path to a TOML config file")
	flag.IntVar(&a.MaxBufferBytes, "maxbuf", 0, "override the line buffer's max size in bytes")
	flag.StringVar(&a.TimestampMode, "timestamps", "", "off or prepend-iso8601-ms")
	flag.StringVar(&a.ScratchDir, "scratchdir", "", "directory for piper scratch files")
	flag.StringVar(&a.LogLevel, "loglevel", "", "error, warn, info or debug")
	flag.BoolVar(&a.Quiet, "quiet", false, "suppress non-error output")
	flag.BoolVar(&a.NoColor, "nocolor", false, "disable colored output")
	flag.StringVar(&a.PprofAddr, "pprof", "", "if set, serve net/http/pprof on this address")
	flag.Parse()

	a.What = strings.Join(flag.Args(), ",")
	return a
}
