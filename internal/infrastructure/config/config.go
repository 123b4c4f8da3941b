package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Locks struct {
		Dir string `yaml:"dir"`
	} `yaml:"locks"`

	Testing struct {
		Token   string        `yaml:"token"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"testing"`

	Monitor struct {
		// WorkflowTimeout and BuildTimeout are the refresh windows of
		// the two polling jobs; each job's interval is 3/4 of its
		// window so data is refreshed before it goes stale.
		WorkflowTimeout time.Duration `yaml:"workflow_timeout"`
		BuildTimeout    time.Duration `yaml:"build_timeout"`
		JobMaxAge       time.Duration `yaml:"job_max_age"`
		Workers         int           `yaml:"workers"`
		PauseFile       string        `yaml:"pause_file"`
		Retention       time.Duration `yaml:"notification_retention"`
		StatusPath      string        `yaml:"status_path"`
	} `yaml:"monitor"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
}

func Load(path string) (Config, error) {
	var c Config

	c.Store.Path = expandHome("~/.local/share/workflow-monitor/monitor.db")
	c.Locks.Dir = expandHome("~/.cache/workflow-monitor/locks")
	c.Testing.Timeout = 10 * time.Second
	c.Monitor.WorkflowTimeout = 30 * time.Minute
	c.Monitor.BuildTimeout = 5 * time.Minute
	c.Monitor.JobMaxAge = 30 * time.Second
	c.Monitor.Workers = 4
	c.Monitor.Retention = 7 * 24 * time.Hour
	c.Monitor.StatusPath = expandHome("~/.cache/workflow-monitor/status.json")
	c.SMTP.Port = 587

	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(b, &c)
		}
	}

	if v := os.Getenv("WM_STORE_PATH"); v != "" {
		c.Store.Path = expandHome(v)
	}

	if v := os.Getenv("WM_LOCK_DIR"); v != "" {
		c.Locks.Dir = expandHome(v)
	}

	if v := os.Getenv("TESTING_TOKEN"); v != "" {
		c.Testing.Token = v
	}

	if v := os.Getenv("TESTING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Testing.Timeout = d
		}
	}

	if v := os.Getenv("WORKFLOW_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Monitor.WorkflowTimeout = d
		}
	}

	if v := os.Getenv("BUILD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Monitor.BuildTimeout = d
		}
	}

	if v := os.Getenv("JOB_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Monitor.JobMaxAge = d
		}
	}

	if v := os.Getenv("WM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Monitor.Workers = n
		}
	}

	if v := os.Getenv("NOTIFICATION_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Monitor.Retention = d
		}
	}

	if v := os.Getenv("STATUS_PATH"); v != "" {
		c.Monitor.StatusPath = expandHome(v)
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}

	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.SMTP.Port = n
		}
	}

	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.SMTP.Username = v
	}

	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}

	if v := os.Getenv("SMTP_FROM"); v != "" {
		c.SMTP.From = v
	}

	c.Store.Path = expandHome(c.Store.Path)
	c.Locks.Dir = expandHome(c.Locks.Dir)
	c.Monitor.StatusPath = expandHome(c.Monitor.StatusPath)

	if c.Monitor.WorkflowTimeout <= 0 {
		c.Monitor.WorkflowTimeout = 30 * time.Minute
	}

	if c.Monitor.BuildTimeout <= 0 {
		c.Monitor.BuildTimeout = 5 * time.Minute
	}

	if c.Testing.Timeout <= 0 {
		c.Testing.Timeout = 10 * time.Second
	}

	if c.Monitor.Retention <= 0 {
		c.Monitor.Retention = 7 * 24 * time.Hour
	}

	if c.Store.Path == "" {
		return c, errors.New("store path is required")
	}

	if c.Locks.Dir == "" {
		return c, errors.New("lock directory is required")
	}

	if c.Monitor.PauseFile == "" {
		c.Monitor.PauseFile = expandHome("~/.cache/workflow-monitor/paused")
	}

	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return c, errors.New("smtp.from is required when smtp.host is set")
	}

	return c, nil
}

func Save(path string, c Config) error {
	if path == "" {
		return errors.New("empty config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	b, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	if _, err := f.Write(b); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if h, _ := os.UserHomeDir(); h != "" {
			return h + p[1:]
		}
	}
	return p
}
