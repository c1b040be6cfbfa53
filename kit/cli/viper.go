package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Opt is a single command-line option
type Opt struct {
	DestP interface{} // pointer to the destination

	EnvVar     string
	Flag       string
	Hidden     bool
	Persistent bool
	Required   bool
	Short      rune // using rune b/c it guarantees correctness. a short must always be a string of length 1

	Default interface{}
	Desc    string
}

// Program parses CLI options
type Program struct {
	// Run is invoked by cobra on execute.
	Run func() error
	// Name is the name of the program in help usage and the env var prefix.
	Name string
	// Opts are the command line/env var options to the program
	Opts []Opt
}

// NewCommand creates a new cobra command to be executed that respects env vars.
//
// Uses the upper-case version of the program's name as a prefix
// to all environment variables.
//
// Values are also read from the config file named by <NAME>_CONFIG_PATH. When
// that names a directory, the first of config.json, config.toml, config.yaml
// and config.yml in it is loaded. Without <NAME>_CONFIG_PATH no config file
// is read.
// Flags take precedence over env vars, and env vars over the config file.
func NewCommand(v *viper.Viper, p *Program) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:  p.Name,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return p.Run()
		},
	}

	v.SetEnvPrefix(strings.ToUpper(p.Name))
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	configFile, err := findConfigFile(v.GetString("config-path"))
	if err != nil {
		return nil, err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if err := BindOptions(v, cmd, p.Opts); err != nil {
		return nil, err
	}
	return cmd, nil
}

// findConfigFile resolves path to a config file. A directory is searched for
// the supported config names in order of precedence. An empty path means no
// config file.
func findConfigFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("invalid config path %s: %w", path, err)
	}
	if !fi.IsDir() {
		return path, nil
	}

	for _, ext := range []string{"json", "toml", "yaml", "yml"} {
		f := filepath.Join(path, "config."+ext)
		if _, err := os.Stat(f); err == nil {
			return f, nil
		}
	}
	return "", nil
}

// BindOptions adds opts to the specified command and automatically
// registers those options with viper.
func BindOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) error {
	var required []string
	for _, o := range opts {
		flagset := cmd.Flags()
		if o.Persistent {
			flagset = cmd.PersistentFlags()
		}

		envVal := lookupEnv(v, o)
		hasShort := o.Short != 0

		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			if hasShort {
				flagset.StringVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.StringVar(destP, o.Flag, d, o.Desc)
			}
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if envVal != nil {
				*destP = v.GetString(o.Flag)
			}
		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			if hasShort {
				flagset.IntVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.IntVar(destP, o.Flag, d, o.Desc)
			}
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if envVal != nil {
				*destP = v.GetInt(o.Flag)
			}
		case *int32:
			var d int32
			if o.Default != nil {
				// N.B. since our CLI kit types default values as interface{} and
				// literal numbers get typed as int by default, it's very easy to
				// create an int32 CLI flag with an int default value.
				if i, ok := o.Default.(int); ok {
					d = int32(i)
				} else {
					d = o.Default.(int32)
				}
			}
			if hasShort {
				flagset.Int32VarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.Int32Var(destP, o.Flag, d, o.Desc)
			}
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if envVal != nil {
				*destP = v.GetInt32(o.Flag)
			}
		case *int64:
			var d int64
			if o.Default != nil {
				if i, ok := o.Default.(int); ok {
					d = int64(i)
				} else {
					d = o.Default.(int64)
				}
			}
			if hasShort {
				flagset.Int64VarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.Int64Var(destP, o.Flag, d, o.Desc)
			}
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if envVal != nil {
				*destP = v.GetInt64(o.Flag)
			}
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			if hasShort {
				flagset.BoolVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.BoolVar(destP, o.Flag, d, o.Desc)
			}
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if envVal != nil {
				*destP = v.GetBool(o.Flag)
			}
		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			if hasShort {
				flagset.DurationVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.DurationVar(destP, o.Flag, d, o.Desc)
			}
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if envVal != nil {
				*destP = v.GetDuration(o.Flag)
			}
		case *[]string:
			var d []string
			if o.Default != nil {
				d = o.Default.([]string)
			}
			if hasShort {
				flagset.StringSliceVarP(destP, o.Flag, string(o.Short), d, o.Desc)
			} else {
				flagset.StringSliceVar(destP, o.Flag, d, o.Desc)
			}
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if envVal != nil {
				ss, err := stringSlice(v.Get(o.Flag))
				if err != nil {
					return fmt.Errorf("invalid value for %s: %w", o.Flag, err)
				}
				*destP = ss
			}
		case *zapcore.Level:
			var l zapcore.Level
			if o.Default != nil {
				l = o.Default.(zapcore.Level)
			}
			if hasShort {
				LevelVarP(flagset, destP, o.Flag, string(o.Short), l, o.Desc)
			} else {
				LevelVar(flagset, destP, o.Flag, l, o.Desc)
			}
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if envVal != nil {
				if err := destP.Set(v.GetString(o.Flag)); err != nil {
					return fmt.Errorf("invalid value for %s: %w", o.Flag, err)
				}
			}
		case pflag.Value:
			if o.Default != nil {
				if err := destP.Set(fmt.Sprint(o.Default)); err != nil {
					return err
				}
			}
			if hasShort {
				flagset.VarP(destP, o.Flag, string(o.Short), o.Desc)
			} else {
				flagset.Var(destP, o.Flag, o.Desc)
			}
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if envVal != nil {
				if err := destP.Set(v.GetString(o.Flag)); err != nil {
					return fmt.Errorf("invalid value for %s: %w", o.Flag, err)
				}
			}
		default:
			// if you get here, sorry about that!
			// anyway, go ahead and make a PR and add another type.
			return fmt.Errorf("unknown destination type %T", o.DestP)
		}

		if o.Hidden {
			_ = flagset.MarkHidden(o.Flag)
		}
		if o.Required && envVal == nil {
			required = append(required, o.Flag)
		}
	}

	if len(required) > 0 {
		cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
			for _, name := range required {
				if f := cmd.Flags().Lookup(name); f == nil || !f.Changed {
					return fmt.Errorf("required flag(s) %q not set", name)
				}
			}
			return nil
		}
	}
	return nil
}

// stringSlice converts a list option read by viper. Env vars and scalar
// config values arrive as one string and are split with the same CSV rules
// as the flag itself.
func stringSlice(val interface{}) ([]string, error) {
	s, ok := val.(string)
	if !ok {
		return cast.ToStringSliceE(val)
	}

	var ss []string
	fs := pflag.NewFlagSet("", pflag.ContinueOnError)
	fs.StringSliceVar(&ss, "v", nil, "")
	if err := fs.Set("v", s); err != nil {
		return nil, err
	}
	return ss, nil
}

// lookupEnv returns the value an option already has from the environment or
// the config file, or nil if neither sets it.
func lookupEnv(v *viper.Viper, o Opt) interface{} {
	if o.EnvVar != "" {
		if err := v.BindEnv(o.Flag, o.EnvVar); err != nil {
			return nil
		}
	}
	if !v.IsSet(o.Flag) {
		return nil
	}
	return v.Get(o.Flag)
}
