// Package compileinfo reports how the running binary was built.
package compileinfo

import (
	"fmt"
	"runtime/debug"
)

// Name is the program name used in the User-Agent.
const Name = "herring"

type CompileInfo struct {
	Package    string
	Version    string
	GoVersion  string
	Commit     string
	CommitTime string
	Modified   bool
}

func (c CompileInfo) String() string {
	mod := ""
	if c.Modified {
		mod = " Files in the repo were modified after that commit."
	}

	return fmt.Sprintf("%s %s (%s) built with %s at commit %v at time %v.%s",
		Name, c.version(), c.Package, c.GoVersion, c.Commit, c.CommitTime, mod)
}

// UserAgent identifies this client to the ENA portal.
func (c CompileInfo) UserAgent() string {
	return fmt.Sprintf("%s/%s (+https://github.com/carbocation/herring)", Name, c.version())
}

func (c CompileInfo) version() string {
	switch {
	case c.Version != "" && c.Version != "(devel)":
		return c.Version
	case c.Commit != "":
		if len(c.Commit) > 12 {
			return c.Commit[:12]
		}
		return c.Commit
	}

	return "dev"
}

// Get reads the build information embedded by the Go toolchain.
func Get() CompileInfo {
	z, ok := debug.ReadBuildInfo()
	if !ok {
		return CompileInfo{}
	}

	return fromBuildInfo(z)
}

func fromBuildInfo(z *debug.BuildInfo) CompileInfo {
	out := CompileInfo{
		Package:   z.Path,
		Version:   z.Main.Version,
		GoVersion: z.GoVersion,
	}

	for _, s := range z.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}
