// Package version carries the build information stamped into the binary.
package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the resolved build information of the running binary.
type Info struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
	Platform  string
}

// Get returns the build information, filling in the runtime fields.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the build info one field per line.
func (i Info) String() string {
	return fmt.Sprintf("pod-cpu-mutator %s\ncommit: %s\nbuilt: %s\ngo: %s\nplatform: %s\n",
		i.Version, i.Commit, i.Date, i.GoVersion, i.Platform)
}

// NewVersionCmd returns a cobra command that prints the build info.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(Get().String())
		},
	}
}
