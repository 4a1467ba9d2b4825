package config

import "time"

// TrustRootKind distinguishes the three ways HTTPS calls to the inference
// server can establish trust. This replaces the source's string/bool hybrid
// (spec.md §9 Design Notes) with an explicit enumeration.
type TrustRootKind int

const (
	// TrustRootSystem uses the host's system trust store.
	TrustRootSystem TrustRootKind = iota
	// TrustRootPath loads a PEM bundle from TrustRoot.Path.
	TrustRootPath
	// TrustRootInsecure disables certificate verification entirely. Load
	// selects it only when CERT_FILE is "insecure" and ALLOW_INSECURE_TLS is
	// true; no build-level restriction applies.
	TrustRootInsecure
)

// TrustRoot is the normalized TLS trust configuration for the Inference Client.
type TrustRoot struct {
	Kind TrustRootKind
	Path string
}

// Config is the complete runtime configuration for the gateway, loaded from
// the environment keys specified in spec.md §6.
type Config struct {
	// SCP Receiver
	SCPIP      string
	SCPPort    int
	SCPAETitle string

	// Storage
	TemporaryStorage string // SCP storage root
	DBBaseDir        string // Catalog base directory

	// Coordinator
	RunInterval time.Duration
	TaskTimeout time.Duration

	// Inference Client TLS
	TrustRoot TrustRoot

	// Ambient
	LogLevel string

	// Ops surface (ambient addition, not in spec.md's env key list)
	MetricsAddr string
}

// Load reads Config from the environment. CERT_FILE selects the trust root:
// empty gives TrustRootSystem; "insecure" together with ALLOW_INSECURE_TLS=true
// gives TrustRootInsecure; any other value is a TrustRootPath. Insecure mode
// is never reached by an operator simply leaving CERT_FILE blank.
func Load() Config {
	certFile := ParseString("CERT_FILE", "")
	trustRoot := TrustRoot{Kind: TrustRootSystem}
	if certFile != "" {
		if certFile == "insecure" && ParseBool("ALLOW_INSECURE_TLS", false) {
			trustRoot = TrustRoot{Kind: TrustRootInsecure}
		} else {
			trustRoot = TrustRoot{Kind: TrustRootPath, Path: certFile}
		}
	}

	return Config{
		SCPIP:      ParseString("SCP_IP", "0.0.0.0"),
		SCPPort:    ParseInt("SCP_PORT", 11112),
		SCPAETitle: ParseString("SCP_AE_TITLE", "GATEWAY"),

		TemporaryStorage: ParseString("TEMPORARY_STORAGE", "/data/incoming"),
		DBBaseDir:        ParseString("DB_BASEDIR", "/data/db"),

		RunInterval: ParseDuration("DAEMON_RUN_INTERVAL", 10*time.Second),
		TaskTimeout: ParseDuration("TIMEOUT", 2*time.Hour),

		TrustRoot: trustRoot,

		LogLevel: ParseString("LOG_LEVEL", "info"),

		MetricsAddr: ParseString("METRICS_ADDR", ":9100"),
	}
}
