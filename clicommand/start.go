// Package clicommand holds the commands of the sqaaas-api binary.
package clicommand

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/eosc-synergy/sqaaas/badgr"
	"github.com/eosc-synergy/sqaaas/internal/jepl"
	"github.com/eosc-synergy/sqaaas/internal/pipeline"
	"github.com/eosc-synergy/sqaaas/jenkins"
	"github.com/eosc-synergy/sqaaas/logger"
	"github.com/eosc-synergy/sqaaas/scm"
	"github.com/eosc-synergy/sqaaas/version"
	"github.com/eosc-synergy/sqaaas/webapi"
)

var StartDescription = `Usage:

   sqaaas-api start [arguments...]

Description:

   Starts the SQAaaS API server. The server renders pipeline requests into
   JePL files, keeps them in repositories of the controlled organization,
   drives their builds through Jenkins and issues badges for successful
   ones.

   Credentials are read from files so they can be mounted as secrets.

Example:

   $ sqaaas-api start --scm-org my-org --scm-token-file /run/secrets/github \
       --jenkins-url https://jenkins.example --jenkins-user ci \
       --jenkins-token-file /run/secrets/jenkins --jenkins-ci-org my-org-ci`

// StartConfig is the configuration for the start command.
type StartConfig struct {
	ListenAddr string

	SCMBackend   string
	SCMEndpoint  string
	SCMOrg       string
	SCMTokenFile string

	MirrorTimeout time.Duration

	JenkinsURL       string
	JenkinsUser      string
	JenkinsTokenFile string
	JenkinsCIOrg     string

	BadgrURL          string
	BadgrUser         string
	BadgrPasswordFile string
	BadgrIssuer       string
	BadgrBadgeClass   string

	StateFile string

	LogLevel string
	NoColor  bool
}

var StartCommand = cli.Command{
	Name:        "start",
	Usage:       "Starts the SQAaaS API server",
	Description: StartDescription,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:   "listen-addr",
			Value:  ":8080",
			Usage:  "The address to listen on",
			EnvVar: "SQAAAS_LISTEN_ADDR",
		},
		cli.StringFlag{
			Name:   "scm-backend",
			Value:  "github",
			Usage:  "The repository platform backend (only \"github\" is supported)",
			EnvVar: "SQAAAS_SCM_BACKEND",
		},
		cli.StringFlag{
			Name:   "scm-endpoint",
			Value:  "https://api.github.com",
			Usage:  "The repository platform API endpoint",
			EnvVar: "SQAAAS_SCM_ENDPOINT",
		},
		cli.StringFlag{
			Name:   "scm-org",
			Usage:  "The organization owning the pipeline repositories",
			EnvVar: "SQAAAS_SCM_ORG",
		},
		cli.StringFlag{
			Name:   "scm-token-file",
			Usage:  "Path to a file holding the repository platform access token",
			EnvVar: "SQAAAS_SCM_TOKEN_FILE",
		},
		cli.DurationFlag{
			Name:   "mirror-timeout",
			Value:  10 * time.Minute,
			Usage:  "Wall-clock ceiling for mirroring an external repository",
			EnvVar: "SQAAAS_MIRROR_TIMEOUT",
		},
		cli.StringFlag{
			Name:   "jenkins-url",
			Usage:  "The Jenkins endpoint",
			EnvVar: "SQAAAS_JENKINS_URL",
		},
		cli.StringFlag{
			Name:   "jenkins-user",
			Usage:  "The Jenkins API user",
			EnvVar: "SQAAAS_JENKINS_USER",
		},
		cli.StringFlag{
			Name:   "jenkins-token-file",
			Usage:  "Path to a file holding the Jenkins API token",
			EnvVar: "SQAAAS_JENKINS_TOKEN_FILE",
		},
		cli.StringFlag{
			Name:   "jenkins-ci-org",
			Usage:  "The Jenkins organization folder scanning the controlled organization",
			EnvVar: "SQAAAS_JENKINS_CI_ORG",
		},
		cli.StringFlag{
			Name:   "badgr-url",
			Usage:  "The Badgr endpoint",
			EnvVar: "SQAAAS_BADGR_URL",
		},
		cli.StringFlag{
			Name:   "badgr-user",
			Usage:  "The Badgr user",
			EnvVar: "SQAAAS_BADGR_USER",
		},
		cli.StringFlag{
			Name:   "badgr-password-file",
			Usage:  "Path to a file holding the Badgr password",
			EnvVar: "SQAAAS_BADGR_PASSWORD_FILE",
		},
		cli.StringFlag{
			Name:   "badgr-issuer",
			Usage:  "Display name of the Badgr issuer",
			EnvVar: "SQAAAS_BADGR_ISSUER",
		},
		cli.StringFlag{
			Name:   "badgr-badgeclass",
			Usage:  "Display name of the Badgr badge class",
			EnvVar: "SQAAAS_BADGR_BADGECLASS",
		},
		cli.StringFlag{
			Name:   "state-file",
			Value:  "/var/lib/sqaaas/pipelines.json",
			Usage:  "Path to the pipeline state file",
			EnvVar: "SQAAAS_STATE_FILE",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "notice",
			Usage:  "Log level (debug, info, notice, warn, error, fatal)",
			EnvVar: "SQAAAS_LOG_LEVEL",
		},
		cli.BoolFlag{
			Name:   "no-color",
			Usage:  "Don't colorize log output",
			EnvVar: "SQAAAS_NO_COLOR",
		},
	},
	Action: func(c *cli.Context) error {
		cfg := StartConfig{
			ListenAddr:        c.String("listen-addr"),
			SCMBackend:        c.String("scm-backend"),
			SCMEndpoint:       c.String("scm-endpoint"),
			SCMOrg:            c.String("scm-org"),
			SCMTokenFile:      c.String("scm-token-file"),
			MirrorTimeout:     c.Duration("mirror-timeout"),
			JenkinsURL:        c.String("jenkins-url"),
			JenkinsUser:       c.String("jenkins-user"),
			JenkinsTokenFile:  c.String("jenkins-token-file"),
			JenkinsCIOrg:      c.String("jenkins-ci-org"),
			BadgrURL:          c.String("badgr-url"),
			BadgrUser:         c.String("badgr-user"),
			BadgrPasswordFile: c.String("badgr-password-file"),
			BadgrIssuer:       c.String("badgr-issuer"),
			BadgrBadgeClass:   c.String("badgr-badgeclass"),
			StateFile:         c.String("state-file"),
			LogLevel:          c.String("log-level"),
			NoColor:           c.Bool("no-color"),
		}
		return start(cfg)
	},
}

func start(cfg StartConfig) error {
	l, err := createLogger(cfg)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if cfg.SCMBackend != "github" {
		return cli.NewExitError(fmt.Sprintf("unsupported repository backend %q: only \"github\" is supported", cfg.SCMBackend), 1)
	}
	for flag, value := range map[string]string{
		"scm-org":        cfg.SCMOrg,
		"scm-token-file": cfg.SCMTokenFile,
		"jenkins-url":    cfg.JenkinsURL,
		"jenkins-user":   cfg.JenkinsUser,
		"jenkins-ci-org": cfg.JenkinsCIOrg,
	} {
		if value == "" {
			return cli.NewExitError(fmt.Sprintf("missing required flag --%s", flag), 1)
		}
	}

	scmToken, err := readSecretFile(cfg.SCMTokenFile)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	scmClient := scm.NewClient(l, scm.Config{
		Endpoint:      cfg.SCMEndpoint,
		Token:         scmToken,
		Org:           cfg.SCMOrg,
		MirrorTimeout: cfg.MirrorTimeout,
		UserAgent:     version.UserAgent(),
	})

	jenkinsToken := ""
	if cfg.JenkinsTokenFile != "" {
		if jenkinsToken, err = readSecretFile(cfg.JenkinsTokenFile); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
	}
	ciClient := jenkins.NewClient(l, jenkins.Config{
		Endpoint:  cfg.JenkinsURL,
		User:      cfg.JenkinsUser,
		Token:     jenkinsToken,
		UserAgent: version.UserAgent(),
	})

	var badgeGw pipeline.BadgeGateway
	if cfg.BadgrURL != "" {
		password, err := readSecretFile(cfg.BadgrPasswordFile)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		badgeGw = badgr.NewClient(l, badgr.Config{
			Endpoint:       cfg.BadgrURL,
			Username:       cfg.BadgrUser,
			Password:       password,
			IssuerName:     cfg.BadgrIssuer,
			BadgeClassName: cfg.BadgrBadgeClass,
			UserAgent:      version.UserAgent(),
		})
	} else {
		l.Warn("No Badgr endpoint configured, badge operations will fail")
		badgeGw = unavailableBadges{}
	}

	store := pipeline.NewStore(l, cfg.StateFile)
	orch := pipeline.New(l, pipeline.Config{
		ControlledOrg: cfg.SCMOrg,
		CIOrg:         cfg.JenkinsCIOrg,
	}, scmClient, ciClient, badgeGw, store, jepl.PetNamer{})

	svr, err := webapi.NewServer(
		webapi.WithLogger(l),
		webapi.WithAddr(cfg.ListenAddr),
		webapi.WithOrchestrator(orch),
	)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := svr.Start(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	sig := <-signals
	l.Notice("Received %v, shutting down", sig)

	if err := svr.Stop(); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

func createLogger(cfg StartConfig) (logger.Logger, error) {
	level, err := logger.LevelFromString(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	l := logger.NewTextLogger()
	l.SetLevel(level)
	if cfg.NoColor {
		if tl, ok := l.(*logger.TextLogger); ok {
			tl.Colors = false
		}
	}
	return l, nil
}

// readSecretFile reads a credential from a file, trimming the trailing
// newline editors and secret mounts tend to add.
func readSecretFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no credential file configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading credential file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// unavailableBadges rejects every badge operation; it stands in when no
// credential issuer is configured.
type unavailableBadges struct{}

func (unavailableBadges) Issue(ctx context.Context, p badgr.IssueParams) (*badgr.Assertion, error) {
	return nil, &badgeUnavailableError{}
}

type badgeUnavailableError struct{}

func (e *badgeUnavailableError) Error() string   { return "no credential issuer configured" }
func (e *badgeUnavailableError) StatusCode() int { return http.StatusServiceUnavailable }
