package cli

import (
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	serverKey = "server"
	nameKey   = "name"
	userIdKey = "user-id"
	seedKey   = "seed"
	debugKey  = "debug"
)

type options struct {
	v   *viper.Viper
	in  io.Reader
	out io.Writer
}

func (o *options) random() rand.Source {
	seed := o.v.GetInt64(seedKey)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return rand.NewSource(seed)
}

func (o *options) logger() *slog.Logger {
	level := slog.LevelError
	if o.v.GetBool(debugKey) {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(o.out, &slog.HandlerOptions{Level: level}))
}

// NewRootCmd builds the watchparty command tree. Flags can also be set
// through WATCHPARTY_* environment variables.
func NewRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	o := &options{v: viper.New(), in: in, out: out}

	root := &cobra.Command{
		Use:           "watchparty",
		Short:         "Watch videos together from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().String(serverKey, "http://localhost:8080", "Watch party server url")
	root.PersistentFlags().String(nameKey, "", "Display name (random when empty)")
	root.PersistentFlags().String(userIdKey, "", "User id (random when empty)")
	root.PersistentFlags().Int64(seedKey, 0, "Seed for generated ids, 0 uses the clock")
	root.PersistentFlags().Bool(debugKey, false, "Log debug output")

	o.v.SetEnvPrefix("WATCHPARTY")
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()
	o.v.BindPFlags(root.PersistentFlags())

	root.AddCommand(newRoomCmd(o), newJoinCmd(o))

	return root
}
