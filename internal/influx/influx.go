// Package influx ships combat and node telemetry to InfluxDB. When the
// server is unreachable, points are appended to a gzip line-protocol file
// so a match can be imported later.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/quickrts/skirmish/internal/config"
)

// Bucket names written by skirmish.
const (
	BucketCombat = "combat"
	BucketNodes  = "node_status"
)

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{BucketCombat, BucketNodes}

var ErrDisabled = errors.New("influx disabled")

const (
	pingTimeout = 5 * time.Second
	retention   = 7 * 24 * time.Hour
)

// Manager owns the InfluxDB client and the fallback file.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	mu         sync.Mutex
	backupFile io.Closer
}

// NewManager creates a manager that has not connected yet.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
	}
}

func serverURL(cfg config.InfluxConfig) string {
	return fmt.Sprintf("%s://%s:%s", cfg.Protocol, cfg.Host, cfg.Port)
}

// Connect pings the server described by cfg. A reachable server gets its
// organization and buckets created on demand; otherwise the manager falls
// back to the backup file.
func (m *Manager) Connect(cfg config.InfluxConfig) error {
	if !cfg.Enabled {
		return ErrDisabled
	}

	opts := influxdb2.DefaultOptions().SetBatchSize(2500).SetFlushInterval(1000)
	m.Client = influxdb2.NewClientWithOptions(serverURL(cfg), cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	running, err := m.Client.Ping(ctx)
	m.IsValid = err == nil && running

	if !m.IsValid {
		m.Logger.Warn().Err(err).Str("url", serverURL(cfg)).Str("backupPath", m.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	org, err := m.ensureOrg(cfg.Org)
	if err != nil {
		return err
	}
	if err := m.ensureBuckets(org); err != nil {
		return err
	}
	m.CreateWriters(cfg.Org)
	m.Logger.Info().Str("url", serverURL(cfg)).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open influx backup: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) ensureOrg(name string) (*domain.Organization, error) {
	ctx := context.Background()
	orgs := m.Client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, name)
	if err == nil {
		return org, nil
	}
	m.Logger.Info().Str("org", name).Msg("Organization not found, creating")
	org, err = orgs.CreateOrganizationWithName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create organization %s: %w", name, err)
	}
	return org, nil
}

// ensureBuckets creates missing buckets. Matches are short, so points
// expire after a week.
func (m *Manager) ensureBuckets(org *domain.Organization) error {
	ctx := context.Background()
	buckets := m.Client.BucketsAPI()
	rule := domain.RetentionRuleTypeExpire

	for _, name := range m.BucketNames {
		if _, err := buckets.FindBucketByName(ctx, name); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", name).Msg("Bucket not found, creating")
		_, err := buckets.CreateBucketWithName(ctx, org, name, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: int64(retention.Seconds()),
		})
		if err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

// CreateWriters opens an async write API per bucket and logs its errors.
func (m *Manager) CreateWriters(org string) {
	for _, bucket := range m.BucketNames {
		w := m.Client.WriteAPI(org, bucket)
		m.Writers[bucket] = w

		go func(bucket string, errs <-chan error) {
			for err := range errs {
				m.Logger.Error().Err(err).Str("bucket", bucket).Msg("InfluxDB write failed")
			}
		}(bucket, w.Errors())
	}
	m.Logger.Debug().Int("buckets", len(m.BucketNames)).Msg("InfluxDB writers ready")
}

// WritePoint sends point to bucket, or to the backup file when the server
// is not in use.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("bucket %q not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return errors.New("no influx client and no backup writer")
	}
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := io.WriteString(m.BackupWriter, line+"\n"); err != nil {
		return fmt.Errorf("write influx backup: %w", err)
	}
	return nil
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}
