package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the forge3d configuration
type Config struct {
	// HTTP server settings
	Server ServerConfig `mapstructure:"server"`

	// Storage paths
	Storage StorageConfig `mapstructure:"storage"`

	// Inference worker and weights
	Models ModelsConfig `mapstructure:"models"`

	// Generation defaults
	Generation GenerationConfig `mapstructure:"generation"`

	// External rigging toolchain
	Rigging RiggingConfig `mapstructure:"rigging"`

	// Reference image search
	Search SearchConfig `mapstructure:"search"`

	// Background removal for reference images
	Matting MattingConfig `mapstructure:"matting"`

	GPU GPUConfig `mapstructure:"gpu"`

	// Optional S3 mirror of written artifacts
	Mirror MirrorConfig `mapstructure:"mirror"`

	Cleanup CleanupConfig `mapstructure:"cleanup"`

	Log LogConfig `mapstructure:"log"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	MaxUploadMB  int64         `mapstructure:"max_upload_mb"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	BaseDir     string `mapstructure:"base_dir"`
	ProjectRoot string `mapstructure:"project_root"`
	OutputDir   string `mapstructure:"output_dir"`
}

type ModelsConfig struct {
	Worker                WorkerConfig `mapstructure:"worker"`
	ReconstructionWeights string       `mapstructure:"reconstruction_weights"`
	SegmentationWeights   string       `mapstructure:"segmentation_weights"`
}

type WorkerConfig struct {
	URL            string        `mapstructure:"url"`
	Command        []string      `mapstructure:"command"`
	StartupTimeout time.Duration `mapstructure:"startup_timeout"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type GenerationConfig struct {
	Steps            int     `mapstructure:"steps"`
	GuidanceScale    float64 `mapstructure:"guidance_scale"`
	Seed             int64   `mapstructure:"seed"`
	Resolution       int     `mapstructure:"resolution"`
	DecimateAttempts int     `mapstructure:"decimate_attempts"`
}

type RiggingConfig struct {
	UniRigDir      string        `mapstructure:"unirig_dir"`
	Python         string        `mapstructure:"python"`
	SkeletonConfig string        `mapstructure:"skeleton_config"`
	SkinConfig     string        `mapstructure:"skin_config"`
	ExportScript   string        `mapstructure:"export_script"`
	StepTimeout    time.Duration `mapstructure:"step_timeout"`
	ExportTimeout  time.Duration `mapstructure:"export_timeout"`
}

type SearchConfig struct {
	Provider        string        `mapstructure:"provider"`
	Endpoint        string        `mapstructure:"endpoint"`
	MaxResults      int           `mapstructure:"max_results"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	CacheSize       int           `mapstructure:"cache_size"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	MaxDownloadMB   int64         `mapstructure:"max_download_mb"`
}

type MattingConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GPUConfig struct {
	SMIPath string `mapstructure:"smi_path"`
}

type MirrorConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	S3      S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	PathStyle bool   `mapstructure:"path_style"`
}

type CleanupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var (
	cfg *Config
	v   *viper.Viper
)

// Initialize sets up the configuration. An explicit config file path takes
// precedence over the search paths.
func Initialize(configFile string) error {
	v = viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// 1. Same directory as executable
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}

		// 2. Current working directory
		v.AddConfigPath(".")

		// 3. User config directory
		if configDir := getUserConfigDir(); configDir != "" {
			v.AddConfigPath(configDir)
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("FORGE3D")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is ok, we'll use defaults
	}

	loaded, err := load(v)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

// Defaults returns a configuration built only from defaults, without reading
// files or the environment.
func Defaults() *Config {
	dv := viper.New()
	setDefaults(dv)
	c, err := load(dv)
	if err != nil {
		panic(err)
	}
	return c
}

func load(v *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	expandPaths(c)
	return c, nil
}

// setDefaults sets all default values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8100)
	v.SetDefault("server.cors_origins", []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	})
	v.SetDefault("server.max_upload_mb", 32)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)

	// Storage defaults
	v.SetDefault("storage.base_dir", getDefaultBaseDir())
	v.SetDefault("storage.project_root", ".")
	v.SetDefault("storage.output_dir", "") // Will be set to project_root/public/parts/generated

	// Model worker defaults
	v.SetDefault("models.worker.url", "http://127.0.0.1:8101")
	v.SetDefault("models.worker.command", []string{})
	v.SetDefault("models.worker.startup_timeout", 2*time.Minute)
	v.SetDefault("models.worker.load_timeout", 15*time.Minute)
	v.SetDefault("models.worker.request_timeout", 10*time.Minute)
	v.SetDefault("models.reconstruction_weights", "") // Will be set under project_root/tools/3d-gen
	v.SetDefault("models.segmentation_weights", "")

	// Generation defaults
	v.SetDefault("generation.steps", 50)
	v.SetDefault("generation.guidance_scale", 7.0)
	v.SetDefault("generation.seed", 42)
	v.SetDefault("generation.resolution", 256)
	v.SetDefault("generation.decimate_attempts", 12)

	// Rigging defaults
	v.SetDefault("rigging.unirig_dir", "") // Will be set to project_root/tools/UniRig
	v.SetDefault("rigging.python", "")     // Will be resolved from the UniRig venv
	v.SetDefault("rigging.skeleton_config", "configs/task/quick_inference_skel.yaml")
	v.SetDefault("rigging.skin_config", "configs/task/quick_inference_skin.yaml")
	v.SetDefault("rigging.export_script", "export_skin_json.py")
	v.SetDefault("rigging.step_timeout", 120*time.Second)
	v.SetDefault("rigging.export_timeout", 30*time.Second)

	// Search defaults
	v.SetDefault("search.provider", "duckduckgo")
	v.SetDefault("search.endpoint", "https://duckduckgo.com")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.rate_per_second", 1.0)
	v.SetDefault("search.cache_size", 128)
	v.SetDefault("search.cache_ttl", 15*time.Minute)
	v.SetDefault("search.download_timeout", 10*time.Second)
	v.SetDefault("search.max_download_mb", 20)

	// Matting defaults (disabled)
	v.SetDefault("matting.url", "")
	v.SetDefault("matting.timeout", 60*time.Second)

	v.SetDefault("gpu.smi_path", "nvidia-smi")

	// Mirror defaults (disabled)
	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.s3.endpoint", "")
	v.SetDefault("mirror.s3.bucket", "")
	v.SetDefault("mirror.s3.region", "us-east-1")
	v.SetDefault("mirror.s3.access_key", "")
	v.SetDefault("mirror.s3.secret_key", "")
	v.SetDefault("mirror.s3.prefix", "forge3d")
	v.SetDefault("mirror.s3.path_style", true)

	// Cleanup defaults
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.schedule", "@hourly")
	v.SetDefault("cleanup.max_age", 24*time.Hour)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_paths", []string{"stdout"})

	v.SetDefault("metrics.enabled", true)
}

// getDefaultBaseDir returns the default base directory
func getDefaultBaseDir() string {
	if dir := os.Getenv("FORGE3D_HOME"); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".forge3d"
	}

	return filepath.Join(home, ".forge3d")
}

// getUserConfigDir returns the user's config directory
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "forge3d")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "forge3d")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "forge3d")
		}
		return filepath.Join(home, "AppData", "Roaming", "forge3d")
	default:
		return filepath.Join(home, ".config", "forge3d")
	}
}

// expandPaths expands relative paths and sets defaults
func expandPaths(cfg *Config) {
	if cfg.Storage.BaseDir != "" {
		cfg.Storage.BaseDir = expandPath(cfg.Storage.BaseDir)
	}

	if cfg.Storage.ProjectRoot == "" {
		cfg.Storage.ProjectRoot = "."
	}
	cfg.Storage.ProjectRoot = expandPath(cfg.Storage.ProjectRoot)
	if abs, err := filepath.Abs(cfg.Storage.ProjectRoot); err == nil {
		cfg.Storage.ProjectRoot = abs
	}
	root := cfg.Storage.ProjectRoot

	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = filepath.Join(root, "public", "parts", "generated")
	} else {
		cfg.Storage.OutputDir = underRoot(root, expandPath(cfg.Storage.OutputDir))
	}

	weights := filepath.Join(root, "tools", "3d-gen", "TripoSG-model", "pretrained_weights")
	if cfg.Models.ReconstructionWeights == "" {
		cfg.Models.ReconstructionWeights = filepath.Join(weights, "TripoSG")
	} else {
		cfg.Models.ReconstructionWeights = underRoot(root, expandPath(cfg.Models.ReconstructionWeights))
	}
	if cfg.Models.SegmentationWeights == "" {
		cfg.Models.SegmentationWeights = filepath.Join(weights, "RMBG-1.4")
	} else {
		cfg.Models.SegmentationWeights = underRoot(root, expandPath(cfg.Models.SegmentationWeights))
	}

	if cfg.Rigging.UniRigDir == "" {
		cfg.Rigging.UniRigDir = filepath.Join(root, "tools", "UniRig")
	} else {
		cfg.Rigging.UniRigDir = underRoot(root, expandPath(cfg.Rigging.UniRigDir))
	}
	if cfg.Rigging.Python == "" {
		cfg.Rigging.Python = venvPython(cfg.Rigging.UniRigDir)
	} else {
		cfg.Rigging.Python = expandPath(cfg.Rigging.Python)
	}
}

// venvPython picks the interpreter of the toolchain's virtualenv when present
func venvPython(dir string) string {
	candidates := []string{
		filepath.Join(dir, "venv", "bin", "python"),
		filepath.Join(dir, "venv", "Scripts", "python.exe"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return "python3"
}

func underRoot(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// expandPath expands ~ and environment variables
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	return os.ExpandEnv(path)
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// GetViper returns the viper instance
func GetViper() *viper.Viper {
	if v == nil {
		panic("config not initialized")
	}
	return v
}

// SaveConfig writes the effective configuration to path, format chosen by
// extension
func SaveConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := GetViper().WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DefaultConfigPath is where a user level config file is searched for
func DefaultConfigPath() string {
	dir := getUserConfigDir()
	if dir == "" {
		return "config.yaml"
	}
	return filepath.Join(dir, "config.yaml")
}

// CreateAllDirs creates all configured directories
func CreateAllDirs() error {
	dirs := []string{
		cfg.Storage.BaseDir,
		filepath.Join(cfg.Storage.BaseDir, "daemon"),
		cfg.Storage.OutputDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
