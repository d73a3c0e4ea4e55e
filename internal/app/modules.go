package app

import (
	"fmt"
	"net/url"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/opentalk/internal/assets"
	"github.com/dkeye/opentalk/internal/auth"
	"github.com/dkeye/opentalk/internal/config"
	"github.com/dkeye/opentalk/internal/core"
	"github.com/dkeye/opentalk/internal/directory"
	"github.com/dkeye/opentalk/internal/domain"
	"github.com/dkeye/opentalk/internal/modules/breakout"
	"github.com/dkeye/opentalk/internal/modules/chat"
	"github.com/dkeye/opentalk/internal/modules/legalvote"
	"github.com/dkeye/opentalk/internal/modules/livekit"
	"github.com/dkeye/opentalk/internal/modules/meetingnotes"
	"github.com/dkeye/opentalk/internal/modules/moderation"
	"github.com/dkeye/opentalk/internal/modules/polls"
	"github.com/dkeye/opentalk/internal/modules/recording"
	"github.com/dkeye/opentalk/internal/modules/subroomaudio"
	"github.com/dkeye/opentalk/internal/modules/timer"
	"github.com/dkeye/opentalk/internal/modules/trainingreport"
	"github.com/dkeye/opentalk/internal/modules/whiteboard"
	"github.com/dkeye/opentalk/internal/report"
	"github.com/dkeye/opentalk/internal/runner"
)

// ModuleDeps are the collaborators module builders are wired to.
type ModuleDeps struct {
	// Redis is nil in single process setups.
	Redis     *redis.Client
	Generator report.Generator
	Assets    assets.Store
	Clock     clock.Clock
}

// Builders assembles the module set from configuration. Modules whose
// external service is not configured are still built and decline at init.
func Builders(cfg config.ModulesConfig, deps ModuleDeps) ([]core.Builder, error) {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	logger := log.With().Str("module", "app.modules").Logger()

	keys := auth.LiveKitKeys{APIKey: cfg.LiveKit.APIKey, APISecret: cfg.LiveKit.APISecret}
	var roomService livekit.RoomService
	if cfg.LiveKit.ServiceURL != "" && keys.APIKey != "" {
		roomService = livekit.NewClient(cfg.LiveKit.ServiceURL, keys)
	}

	var spaces whiteboard.Spaces
	if cfg.Whiteboard.URL != "" {
		base, err := url.Parse(cfg.Whiteboard.URL)
		if err != nil {
			return nil, fmt.Errorf("whiteboard url: %w", err)
		}
		spaces = whiteboard.NewSpacedeck(base, cfg.Whiteboard.APIToken)
	}

	var pads meetingnotes.Pads
	if cfg.MeetingNotes.URL != "" {
		base, err := url.Parse(cfg.MeetingNotes.URL)
		if err != nil {
			return nil, fmt.Errorf("meeting notes url: %w", err)
		}
		pads = meetingnotes.NewEtherpad(base, cfg.MeetingNotes.APIKey, deps.Clock)
	}

	all := []core.Builder{
		moderation.NewBuilder(),
		chat.NewBuilder(chat.Params{HistoryLen: cfg.Chat.HistoryLen, MaxMessageLength: cfg.Chat.MaxMessageLength}),
		breakout.NewBuilder(),
		timer.NewBuilder(),
		polls.NewBuilder(),
		legalvote.NewBuilder(deps.Generator, deps.Assets),
		recording.NewBuilder(recording.Params{Queue: recordingQueue(cfg.Recording, deps.Redis), Livestreams: livestreams(cfg.Recording)}),
		livekit.NewBuilder(livekit.Params{
			Service:    roomService,
			Keys:       keys,
			PublicURL:  cfg.LiveKit.PublicURL,
			ServiceURL: cfg.LiveKit.ServiceURL,
			TokenTTL:   cfg.LiveKit.TokenTTL,
		}),
		subroomaudio.NewBuilder(keys, cfg.LiveKit.TokenTTL),
		whiteboard.NewBuilder(spaces),
		meetingnotes.NewBuilder(pads, deps.Generator, deps.Assets),
		trainingreport.NewBuilder(trainingDefaults(cfg.TrainingReport), deps.Generator, deps.Assets),
	}

	builders := lo.Reject(all, func(b core.Builder, _ int) bool {
		return lo.Contains(cfg.Disabled, b.Namespace())
	})
	logger.Info().
		Strs("modules", lo.Map(builders, func(b core.Builder, _ int) string { return b.Namespace() })).
		Msg("modules assembled")
	return builders, nil
}

func recordingQueue(cfg config.RecordingConfig, client *redis.Client) recording.TaskQueue {
	switch {
	case !cfg.Enabled:
		return nil
	case client != nil && cfg.Queue != "":
		return recording.NewRedisQueue(client, cfg.Queue)
	default:
		log.Warn().Str("module", "app.modules").Msg("recording without redis, tasks stay in process")
		return &recording.MemoryQueue{}
	}
}

func livestreams(cfg config.RecordingConfig) []recording.Target {
	return lo.Map(cfg.Livestreams, func(l config.LivestreamConfig, _ int) recording.Target {
		return recording.Target{ID: recording.TargetID(l.ID), Name: l.Name, Location: l.PublicURL}
	})
}

func trainingDefaults(cfg config.TrainingReportConfig) trainingreport.Defaults {
	return trainingreport.Defaults{
		InitialCheckpointDelay: trainingreport.TimeRange{After: cfg.InitialDelayAfter, Within: cfg.InitialDelayWithin},
		CheckpointInterval:     trainingreport.TimeRange{After: cfg.IntervalAfter, Within: cfg.IntervalWithin},
	}
}

// NewDirectory seeds the in-process directory from configuration.
func NewDirectory(cfg config.DirectoryConfig) *directory.Memory {
	dir := directory.NewMemory()
	if cfg.DefaultTariff.ID != "" {
		dir.SetDefaultTariff(tariff(cfg.DefaultTariff))
	}
	for _, t := range cfg.Tariffs {
		dir.PutTariff(tariff(t))
	}
	for _, u := range cfg.Users {
		dir.PutUser(domain.User{
			ID:          domain.UserID(u.ID),
			DisplayName: u.DisplayName,
			AvatarURL:   u.AvatarURL,
			Groups:      u.Groups,
			Tariff:      u.Tariff,
		})
	}
	for _, r := range cfg.Rooms {
		dir.PutRoom(domain.RoomInfo{
			ID:           domain.RoomID(r.ID),
			Title:        r.Title,
			CreatedBy:    domain.UserID(r.CreatedBy),
			Password:     r.Password,
			WaitingRoom:  r.WaitingRoom,
			E2EEncrypted: r.E2EEncrypted,
		})
	}
	for _, p := range cfg.PhoneNumbers {
		dir.PutPhoneNumber(p.Number, p.Name)
	}
	return dir
}

func tariff(t config.TariffConfig) domain.Tariff {
	return domain.Tariff{ID: t.ID, Name: t.Name, Modules: t.Modules, Quotas: t.Quotas}
}

// NewAuthenticator maps the configured user and service tokens.
func NewAuthenticator(users []config.UserConfig, cfg config.AuthConfig) *auth.Static {
	tokens := make(map[string]domain.UserID)
	for _, u := range users {
		if u.Token != "" {
			tokens[u.Token] = domain.UserID(u.ID)
		}
	}
	return auth.NewStatic(tokens, map[auth.Service]string{
		auth.ServiceRecording: cfg.RecordingToken,
		auth.ServiceCallIn:    cfg.CallInToken,
	})
}

// RunnerOptions maps signaling settings onto runner options.
func RunnerOptions(cfg config.SignalingConfig, base runner.Options) runner.Options {
	if cfg.RunnerLockTimeout > 0 {
		base.RunnerLock.Timeout = cfg.RunnerLockTimeout
	}
	if cfg.RoomLockTimeout > 0 {
		base.RoomLockTimeout = cfg.RoomLockTimeout
	}
	return base
}

// DefaultSessionTimeout bounds how long CancelAll waits on shutdown.
const DefaultSessionTimeout = 10 * time.Second
