package services

import (
	"context"
	"time"

	"github.com/fennecvideo/fennec/internal/logger"
	"github.com/fennecvideo/fennec/internal/repos"
	"github.com/fennecvideo/fennec/internal/types"
)

// SettingsService is the typed view over the JSONB config table. Every
// getter falls back to the documented default when the key is absent, so a
// fresh database behaves sanely before seeding.
type SettingsService interface {
	Seed(ctx context.Context, seed SettingsSeed) error

	IndexerState(ctx context.Context) (string, error)
	SetIndexerState(ctx context.Context, state string) error
	PollInterval(ctx context.Context) (time.Duration, error)
	WatchFolders(ctx context.Context) ([]string, error)
	SetWatchFolders(ctx context.Context, folders []string) error
	EnabledModels(ctx context.Context) (types.EnabledModels, error)
	SetEnabledModels(ctx context.Context, m types.EnabledModels) error
	ModelVersions(ctx context.Context) (map[string]types.ModelSpec, error)
	Thresholds(ctx context.Context) (types.SearchThresholds, error)
	SetThresholds(ctx context.Context, t types.SearchThresholds) error
	PosterSettings(ctx context.Context) (types.PosterSettings, error)

	// RestartRequested reports and clears are split so the scheduler can
	// observe the flag once per tick.
	RestartRequested(ctx context.Context) (bool, error)
	SetRestartRequested(ctx context.Context, v bool) error

	ScanProgress(ctx context.Context) (*types.ScanProgress, error)
	SetScanProgress(ctx context.Context, p *types.ScanProgress) error
	RecordScanFinished(ctx context.Context, at time.Time, took time.Duration) error
	LastScan(ctx context.Context) (at *time.Time, durationMS int64, err error)

	All(ctx context.Context) ([]*types.ConfigEntry, error)
	SetRaw(ctx context.Context, key string, value interface{}) error
}

// SettingsSeed carries the initial values written on first boot. Existing
// keys are never overwritten, so operator edits survive restarts.
type SettingsSeed struct {
	WatchFolders        []string             `yaml:"watch_folders"`
	PollIntervalSeconds int                  `yaml:"poll_interval_seconds"`
	EnabledModels       *types.EnabledModels `yaml:"enabled_models"`
}

type settingsService struct {
	cfg repos.ConfigRepo
	log *logger.Logger
}

func NewSettingsService(cfg repos.ConfigRepo, log *logger.Logger) SettingsService {
	return &settingsService{cfg: cfg, log: log.With("service", "SettingsService")}
}

const defaultPollIntervalSeconds = 3600

func (s *settingsService) Seed(ctx context.Context, seed SettingsSeed) error {
	pairs := []struct {
		key   string
		value interface{}
	}{
		{types.ConfigIndexerState, types.IndexerRunning},
		{types.ConfigPollInterval, pollSecondsOrDefault(seed.PollIntervalSeconds)},
		{types.ConfigWatchFolders, nonNilFolders(seed.WatchFolders)},
		{types.ConfigEnrichmentModels, seedModels(seed.EnabledModels)},
		{types.ConfigModelVersions, types.DefaultModelVersions()},
		{types.ConfigPosterWidth, types.DefaultPosterSettings().Width},
		{types.ConfigPosterQuality, types.DefaultPosterSettings().Quality},
		{types.ConfigPosterFormat, types.DefaultPosterSettings().Format},
		{types.ConfigThresholdVisual, types.DefaultThresholds().Visual},
		{types.ConfigThresholdVisMatch, types.DefaultThresholds().VisualMatch},
		{types.ConfigThresholdFace, types.DefaultThresholds().Face},
		{types.ConfigThresholdTranscrpt, types.DefaultThresholds().Transcript},
	}
	for _, p := range pairs {
		if err := s.cfg.SetIfAbsent(ctx, nil, p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}

func pollSecondsOrDefault(v int) int {
	if v <= 0 {
		return defaultPollIntervalSeconds
	}
	return v
}

func nonNilFolders(folders []string) []string {
	if folders == nil {
		return []string{}
	}
	return folders
}

func seedModels(m *types.EnabledModels) types.EnabledModels {
	if m == nil {
		return types.DefaultEnabledModels()
	}
	return *m
}

func (s *settingsService) IndexerState(ctx context.Context) (string, error) {
	var state string
	found, err := s.cfg.GetInto(ctx, nil, types.ConfigIndexerState, &state)
	if err != nil {
		return "", err
	}
	if !found || (state != types.IndexerRunning && state != types.IndexerPaused) {
		return types.IndexerRunning, nil
	}
	return state, nil
}

func (s *settingsService) SetIndexerState(ctx context.Context, state string) error {
	return s.cfg.Set(ctx, nil, types.ConfigIndexerState, state)
}

func (s *settingsService) PollInterval(ctx context.Context) (time.Duration, error) {
	var seconds int
	found, err := s.cfg.GetInto(ctx, nil, types.ConfigPollInterval, &seconds)
	if err != nil {
		return 0, err
	}
	if !found || seconds <= 0 {
		seconds = defaultPollIntervalSeconds
	}
	return time.Duration(seconds) * time.Second, nil
}

func (s *settingsService) WatchFolders(ctx context.Context) ([]string, error) {
	var folders []string
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigWatchFolders, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

func (s *settingsService) SetWatchFolders(ctx context.Context, folders []string) error {
	return s.cfg.Set(ctx, nil, types.ConfigWatchFolders, nonNilFolders(folders))
}

func (s *settingsService) EnabledModels(ctx context.Context) (types.EnabledModels, error) {
	models := types.DefaultEnabledModels()
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigEnrichmentModels, &models); err != nil {
		return models, err
	}
	return models, nil
}

func (s *settingsService) SetEnabledModels(ctx context.Context, m types.EnabledModels) error {
	return s.cfg.Set(ctx, nil, types.ConfigEnrichmentModels, m)
}

func (s *settingsService) ModelVersions(ctx context.Context) (map[string]types.ModelSpec, error) {
	versions := map[string]types.ModelSpec{}
	found, err := s.cfg.GetInto(ctx, nil, types.ConfigModelVersions, &versions)
	if err != nil {
		return nil, err
	}
	if !found || len(versions) == 0 {
		return types.DefaultModelVersions(), nil
	}
	// Fill gaps so a partial override never hides a model.
	for name, spec := range types.DefaultModelVersions() {
		if _, ok := versions[name]; !ok {
			versions[name] = spec
		}
	}
	return versions, nil
}

func (s *settingsService) Thresholds(ctx context.Context) (types.SearchThresholds, error) {
	t := types.DefaultThresholds()
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigThresholdVisual, &t.Visual); err != nil {
		return t, err
	}
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigThresholdVisMatch, &t.VisualMatch); err != nil {
		return t, err
	}
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigThresholdFace, &t.Face); err != nil {
		return t, err
	}
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigThresholdTranscrpt, &t.Transcript); err != nil {
		return t, err
	}
	return t, nil
}

func (s *settingsService) SetThresholds(ctx context.Context, t types.SearchThresholds) error {
	if err := s.cfg.Set(ctx, nil, types.ConfigThresholdVisual, t.Visual); err != nil {
		return err
	}
	if err := s.cfg.Set(ctx, nil, types.ConfigThresholdVisMatch, t.VisualMatch); err != nil {
		return err
	}
	if err := s.cfg.Set(ctx, nil, types.ConfigThresholdFace, t.Face); err != nil {
		return err
	}
	return s.cfg.Set(ctx, nil, types.ConfigThresholdTranscrpt, t.Transcript)
}

func (s *settingsService) PosterSettings(ctx context.Context) (types.PosterSettings, error) {
	p := types.DefaultPosterSettings()
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigPosterWidth, &p.Width); err != nil {
		return p, err
	}
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigPosterQuality, &p.Quality); err != nil {
		return p, err
	}
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigPosterFormat, &p.Format); err != nil {
		return p, err
	}
	return p, nil
}

func (s *settingsService) RestartRequested(ctx context.Context) (bool, error) {
	var v bool
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigRestartRequested, &v); err != nil {
		return false, err
	}
	return v, nil
}

func (s *settingsService) SetRestartRequested(ctx context.Context, v bool) error {
	return s.cfg.Set(ctx, nil, types.ConfigRestartRequested, v)
}

func (s *settingsService) ScanProgress(ctx context.Context) (*types.ScanProgress, error) {
	var p types.ScanProgress
	found, err := s.cfg.GetInto(ctx, nil, types.ConfigScanProgress, &p)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

func (s *settingsService) SetScanProgress(ctx context.Context, p *types.ScanProgress) error {
	p.UpdatedAt = time.Now()
	return s.cfg.Set(ctx, nil, types.ConfigScanProgress, p)
}

func (s *settingsService) RecordScanFinished(ctx context.Context, at time.Time, took time.Duration) error {
	if err := s.cfg.Set(ctx, nil, types.ConfigLastScanAt, at); err != nil {
		return err
	}
	return s.cfg.Set(ctx, nil, types.ConfigLastScanDurationMS, took.Milliseconds())
}

func (s *settingsService) LastScan(ctx context.Context) (*time.Time, int64, error) {
	var at time.Time
	found, err := s.cfg.GetInto(ctx, nil, types.ConfigLastScanAt, &at)
	if err != nil {
		return nil, 0, err
	}
	var ms int64
	if _, err := s.cfg.GetInto(ctx, nil, types.ConfigLastScanDurationMS, &ms); err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, ms, nil
	}
	return &at, ms, nil
}

func (s *settingsService) All(ctx context.Context) ([]*types.ConfigEntry, error) {
	return s.cfg.ListAll(ctx, nil)
}

func (s *settingsService) SetRaw(ctx context.Context, key string, value interface{}) error {
	return s.cfg.Set(ctx, nil, key, value)
}
