package flags

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LogFormat = "log-format"
	LogLevel  = "log-level"
	LogSource = "log-source"
	Listen    = "listen"
	Metrics   = "metrics-listen"
	Data      = "data"
	Clouds    = "clouds"
	Secrets   = "secrets"

	Launcher              = "launcher"
	AgentJar              = "agent-jar"
	MaxConcurrentLaunches = "max-concurrent-launches"
	PollInterval          = "poll-interval"
	SSHDialTimeout        = "ssh-dial-timeout"
	Termination           = "termination"
	WaitTimeout           = "wait-timeout"

	RetentionDisabled = "retention-disabled"
	RetentionInterval = "retention-interval"
	IdleTimeout       = "idle-timeout"

	RuntimeCheck   = "runtime-check"
	RuntimeArchive = "runtime-archive"
	RuntimePath    = "runtime-path"
	RuntimeUpload  = "runtime-upload"
	RuntimeTTL     = "runtime-ttl"

	Presign        = "presign"
	PresignCloud   = "presign-cloud"
	S3Endpoint     = "s3-endpoint"
	S3Region       = "s3-region"
	S3AccessKey    = "s3-access-key"
	S3SecretKeyRef = "s3-secret-key-ref"
	S3PathStyle    = "s3-path-style"
)

var flags = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)

func init() {
	// Daemon
	flags.String(LogFormat, "json", "log format (json, text)")
	flags.String(LogLevel, "INFO", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.String(Listen, ":25373", "listening address of the gRPC API")
	flags.String(Metrics, ":25380", "listening address of the metrics endpoint (empty to disable)")
	flags.String(Data, "/var/lib/cloudd", "directory holding the node registry and launch logs")
	flags.String(Clouds, "/etc/cloudd/clouds.yaml", "cloud profiles file")
	flags.String(Secrets, "/etc/cloudd/secrets", "directory resolving secret references")

	// Launch
	flags.String(Launcher, "unix-ssh", "launch strategy (unix-ssh)")
	flags.String(AgentJar, "/usr/share/jenkins/slave.jar", "agent binary copied to every node")
	flags.Int64(MaxConcurrentLaunches, 10, "maximum number of launches running at once per cloud")
	flags.Duration(PollInterval, 5*time.Second, "how long to wait between instance status polls")
	flags.Duration(SSHDialTimeout, 10*time.Second, "timeout of a single SSH connection attempt")
	flags.String(Termination, "lenient", "how termination failures are handled (lenient, strict)")
	flags.Duration(WaitTimeout, 15*time.Minute, "maximum time a request waits for nodes to connect")

	// Retention
	flags.Bool(RetentionDisabled, false, "never terminate idle nodes")
	flags.Duration(RetentionInterval, time.Minute, "how often idle nodes are checked")
	flags.Duration(IdleTimeout, 30*time.Minute, "idle time after which a node is terminated")

	// Runtime
	flags.String(RuntimeCheck, "java -fullversion", "command telling whether the agent runtime is installed")
	flags.String(RuntimeArchive, "", "directory name inside the runtime tarball")
	flags.String(RuntimePath, "", "<container>/<object> path of the runtime tarball, or <container>[/<prefix>] receiving runtime-upload")
	flags.String(RuntimeUpload, "", "local runtime tarball uploaded at startup")
	flags.Duration(RuntimeTTL, 10*time.Minute, "lifetime of runtime download links")

	// Presigning
	flags.String(Presign, "swift", "runtime link signer (swift, s3)")
	flags.String(PresignCloud, "", "cloud whose object storage holds the runtime (default: first cloud)")
	flags.String(S3Endpoint, "", "S3 compatible endpoint")
	flags.String(S3Region, "us-east-1", "S3 region")
	flags.String(S3AccessKey, "", "S3 access key")
	flags.String(S3SecretKeyRef, "", "secret reference of the S3 secret key")
	flags.Bool(S3PathStyle, false, "use path style S3 addressing")

	viper.SetEnvPrefix("cloudd")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	lo.Must0(viper.BindPFlags(flags))
}

// Parse reads the command line, exiting on invalid flags.
func Parse() {
	if err := flags.Parse(os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
