package server

import "time"

type WebhookConfig struct {
	Url         string `usage:"If set, a POST request that contains lifecycle notifications will be sent to this HTTP address"`
	RequireUser bool   `default:"false" usage:"Indicates if start notifications are only sent when the waking player is known"`
}

type BackendConfig struct {
	Address     string        `usage:"The [host:port] of the Minecraft server that is proxied once running"`
	DialTimeout time.Duration `default:"5s" usage:"Timeout for opening a spliced connection to the backend"`
}

type InstanceConfig struct {
	Provider string `default:"none" usage:"How the backend instance is started and stopped: none,docker,kubernetes,hetzner"`
	ID       string `usage:"The instance to start and stop. Container name or ID for docker, [namespace/]statefulset for kubernetes, server ID for hetzner"`
}

type LifecycleConfig struct {
	IdleThreshold       int           `default:"3" usage:"Number of consecutive empty usage checks tolerated; the backend is stopped on the next one"`
	UsageCheckInterval  time.Duration `default:"5m" usage:"Interval between player count checks while proxying"`
	StartupPollInterval time.Duration `default:"20s" usage:"Interval between readiness checks after the instance was started"`
	StatusTimeout       time.Duration `default:"5s" usage:"Connect and read timeout of each status query against the backend"`
	AdoptRunning        bool          `usage:"Start out proxying when the backend already answers status queries at startup"`
}

type AsleepConfig struct {
	MOTD          string `default:"Join to start the server" usage:"Description shown in the server list while the backend is stopped"`
	StartingMOTD  string `usage:"Description shown while the backend is starting; defaults to the asleep MOTD"`
	VersionName   string `default:"Not Proxying" usage:"Version name shown while the backend is stopped"`
	Protocol      int    `default:"767" usage:"Protocol version advertised while the backend is stopped"`
	MaxPlayers    int    `default:"100" usage:"Max players advertised while the backend is stopped"`
	OnlinePlayers int    `default:"1" usage:"Online players advertised while the backend is stopped"`
	Favicon       string `usage:"Path to a 64x64 PNG shown in the server list while the backend is stopped"`
	Config        string `usage:"Name or full [path] to a JSON file overriding the asleep status"`
	ConfigWatch   bool   `usage:"Watch the asleep status file for changes"`
}

type MessagesConfig struct {
	Reconnect   string `default:"The server is starting, please reconnect in a moment" usage:"Disconnect message after the instance was started"`
	StartFailed string `default:"The server could not be started" usage:"Disconnect message when the instance start call failed"`
	Starting    string `default:"The server is still starting, please try again shortly" usage:"Disconnect message while the backend is starting"`
	Stopping    string `default:"The server is shutting down, please try again shortly" usage:"Disconnect message while the backend is stopping"`
	Denied      string `default:"You are not allowed to start this server" usage:"Disconnect message for players that may not wake the backend"`
	Unreachable string `default:"The server is not reachable right now" usage:"Disconnect message when the running backend refused the connection"`
}

type DockerConfig struct {
	Socket      string        `default:"unix:///var/run/docker.sock" usage:"Path to Docker socket to use"`
	Timeout     time.Duration `default:"0s" usage:"Timeout of Docker API calls"`
	ApiVersion  string        `usage:"Instead of auto-negotiating, use specific Docker API version"`
	StopTimeout int           `default:"60" usage:"Seconds the container gets to stop gracefully"`
}

type KubeConfig struct {
	InCluster bool   `usage:"Use in-cluster Kubernetes config"`
	Config    string `usage:"The path to a Kubernetes configuration file"`
	Namespace string `default:"default" usage:"Namespace of the StatefulSet when the instance ID does not name one"`
}

type HetznerConfig struct {
	Token   string `usage:"Hetzner Cloud API token. It is HIGHLY recommended to pass as an environment variable."`
	BaseUrl string `default:"https://api.hetzner.cloud/v1" usage:"Hetzner Cloud API base URL"`
}

type NgrokConfig struct {
	Token      string `usage:"If set, an ngrok tunnel will be established. It is HIGHLY recommended to pass as an environment variable."`
	RemoteAddr string `usage:"If set, the TCP address to request for this edge"`
}

type Config struct {
	Port                 int    `default:"25565" usage:"The [port] bound to listen for Minecraft client connections"`
	ListenAddress        string `usage:"The [host] to bind; empty binds all interfaces"`
	ApiBinding           string `usage:"The [host:port] bound for servicing API requests"`
	CpuProfile           string `usage:"Enables CPU profiling and writes to given path"`
	ConnectionRateLimit  int    `default:"1" usage:"Max number of connections to allow per second"`
	MetricsBackend       string `default:"discard" usage:"Backend to use for metrics exposure/publishing: discard,expvar,influxdb,prometheus"`
	MetricsBackendConfig MetricsBackendConfig
	UseProxyProtocol     bool     `default:"false" usage:"Send PROXY protocol to the backend server"`
	ReceiveProxyProtocol bool     `default:"false" usage:"Receive PROXY protocol from a load balancer in front, by default trusts every proxy header that it receives, combine with -trusted-proxies to specify a list of trusted proxies"`
	TrustedProxies       []string `usage:"Comma delimited list of CIDR notation IP blocks to trust when receiving PROXY protocol"`
	AllowDeny            string   `usage:"Path to a player allowlist/denylist file. Only allowed players can wake the backend"`

	ClientsToAllow []string `usage:"Zero or more client IP addresses or CIDRs to allow. Takes precedence over deny."`
	ClientsToDeny  []string `usage:"Zero or more client IP addresses or CIDRs to deny. Ignored if any configured to allow"`

	Backend   BackendConfig
	Instance  InstanceConfig
	Lifecycle LifecycleConfig
	Asleep    AsleepConfig
	Messages  MessagesConfig
	Docker    DockerConfig
	Kube      KubeConfig
	Hetzner   HetznerConfig
	Ngrok     NgrokConfig
	Webhook   WebhookConfig `usage:"Webhook configuration"`
}
