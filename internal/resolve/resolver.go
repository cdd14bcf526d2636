package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"

	"digidup/internal/catalog"
	"digidup/internal/fileutil"
	"digidup/internal/logging"
)

// DefaultBatchThreshold is the pending-deletion size that triggers a flush
// once exceeded.
const DefaultBatchThreshold = 100

// Catalog is the part of the catalog store a resolution run needs.
type Catalog interface {
	FindDuplicateGroups(ctx context.Context) ([]catalog.DuplicateGroup, error)
	ListGroupMembers(ctx context.Context, fingerprint string) ([]catalog.Image, error)
	DeleteImages(ctx context.Context, ids []int64) (int64, error)
}

// Config is fixed for the lifetime of a run.
type Config struct {
	AlbumRoot       string
	TargetRoot      string
	Mode            Mode
	BatchThreshold  int
	CrossDeviceCopy bool
}

func (c Config) validate() error {
	if strings.TrimSpace(c.AlbumRoot) == "" {
		return errors.New("album root is required")
	}
	if strings.TrimSpace(c.TargetRoot) == "" {
		return errors.New("target root is required")
	}
	if c.Mode != ModeSimulate && c.Mode != ModeApply {
		return fmt.Errorf("%w: run mode not set", ErrUsage)
	}
	if c.BatchThreshold < 1 {
		return fmt.Errorf("batch threshold must be positive, got %d", c.BatchThreshold)
	}
	return nil
}

// MoveFailure records a non-keeper that stayed in place.
type MoveFailure struct {
	ImageID int64           `json:"image_id"`
	Src     string          `json:"src"`
	Dst     string          `json:"dst"`
	Reason  fileutil.Reason `json:"reason"`
	Error   string          `json:"error"`
}

// Report summarizes a run. In simulate mode Moved and Deleted count what
// would have happened.
type Report struct {
	Mode         string        `json:"mode"`
	Groups       int           `json:"groups"`
	Kept         int           `json:"kept"`
	Moved        int           `json:"moved"`
	MoveFailures []MoveFailure `json:"move_failures,omitempty"`
	Deleted      int64         `json:"deleted"`
	Flushes      int           `json:"flushes"`
	Duration     time.Duration `json:"duration"`
}

// Resolver runs one duplicate resolution pass.
type Resolver struct {
	cfg    Config
	store  Catalog
	fs     afero.Fs
	move   func(afero.Fs, string, string) error
	logger *slog.Logger
	batch  *pendingBatch
	report Report
}

// New validates cfg and prepares a run. A nil fs means the OS filesystem.
func New(cfg Config, store Catalog, fsys afero.Fs, logger *slog.Logger) (*Resolver, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("catalog is required")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	move := fileutil.Move
	if cfg.CrossDeviceCopy {
		move = fileutil.MoveAcrossDevices
	}
	logger = logging.NewComponentLogger(logger, "resolve").With(logging.String(logging.FieldMode, cfg.Mode.String()))
	return &Resolver{
		cfg:    cfg,
		store:  store,
		fs:     fsys,
		move:   move,
		logger: logger,
		batch:  newPendingBatch(cfg.BatchThreshold),
	}, nil
}

// Run processes every duplicate group. Queued rows are flushed even when the
// run stops early, so a moved file never keeps its catalog row.
func (r *Resolver) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	r.report = Report{Mode: r.cfg.Mode.String()}

	runErr := r.processGroups(ctx)

	if err := r.flush(ctx); err != nil {
		runErr = errors.Join(runErr, err)
	}

	r.report.Duration = time.Since(started)
	r.logger.Info("resolution finished",
		logging.Int("groups", r.report.Groups),
		logging.Int("moved", r.report.Moved),
		logging.Int("move_failures", len(r.report.MoveFailures)),
		logging.Int64("deleted", r.report.Deleted),
		logging.Duration("duration", r.report.Duration),
		logging.String(logging.FieldEventType, "resolve_finished"),
	)
	return r.report, runErr
}

func (r *Resolver) processGroups(ctx context.Context) error {
	groups, err := r.store.FindDuplicateGroups(ctx)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		r.logger.Info("no duplicate groups found", logging.String(logging.FieldEventType, "resolve_nothing_to_do"))
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.report.Groups++
		r.logger.Info("found duplicate group",
			logging.String(logging.FieldFingerprint, group.Fingerprint),
			logging.Int("count", group.Count),
			logging.String(logging.FieldEventType, "duplicate_group"),
		)

		members, err := r.store.ListGroupMembers(ctx, group.Fingerprint)
		if err != nil {
			return err
		}
		if err := r.processGroup(ctx, members); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) processGroup(ctx context.Context, members []catalog.Image) error {
	for i, img := range members {
		src, srcErr := img.Path(r.cfg.AlbumRoot)
		if i == 0 {
			r.report.Kept++
			r.logger.Info("keeping image",
				logging.Int64(logging.FieldImageID, img.ID),
				logging.String("path", displayPath(src, img)),
			)
			continue
		}

		dst, dstErr := img.Path(r.cfg.TargetRoot)
		if err := errors.Join(srcErr, dstErr); err != nil {
			r.recordFailure(img, src, dst, fileutil.ReasonOther, err)
			continue
		}

		if !r.moveOne(img, src, dst) {
			continue
		}
		if r.batch.add(img.ID) {
			if err := r.flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// moveOne reports whether img ended up (or would end up) in the target tree.
func (r *Resolver) moveOne(img catalog.Image, src, dst string) bool {
	attrs := []logging.Attr{
		logging.Int64(logging.FieldImageID, img.ID),
		logging.String("src", src),
		logging.String("dst", dst),
	}
	if r.cfg.Mode == ModeSimulate {
		r.report.Moved++
		r.logger.Info("would move image", logging.Args(attrs...)...)
		return true
	}

	r.logger.Info("moving image", logging.Args(attrs...)...)
	if err := r.move(r.fs, src, dst); err != nil {
		reason := fileutil.Classify(err)
		var moveErr *fileutil.MoveError
		if errors.As(err, &moveErr) {
			reason = moveErr.Reason
		}
		r.recordFailure(img, src, dst, reason, err)
		return false
	}
	r.report.Moved++
	return true
}

func (r *Resolver) recordFailure(img catalog.Image, src, dst string, reason fileutil.Reason, err error) {
	r.report.MoveFailures = append(r.report.MoveFailures, MoveFailure{
		ImageID: img.ID,
		Src:     src,
		Dst:     dst,
		Reason:  reason,
		Error:   err.Error(),
	})
	logging.WarnWithContext(r.logger, "could not move image", "move_failed",
		logging.Int64(logging.FieldImageID, img.ID),
		logging.String("src", src),
		logging.String("dst", dst),
		logging.String("reason", string(reason)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, reason.Hint()),
		logging.String(logging.FieldImpact, "image and catalog row left in place"),
	)
}

// flush ignores cancellation of ctx: every queued id stands for a file that
// has already left the album tree.
func (r *Resolver) flush(ctx context.Context) error {
	if r.batch.len() == 0 {
		return nil
	}
	ids := r.batch.drain()
	r.report.Flushes++

	if r.cfg.Mode == ModeSimulate {
		r.report.Deleted += int64(len(ids))
		r.logger.Info("would remove catalog rows",
			logging.Int("count", len(ids)),
			logging.Any("ids", ids),
			logging.String(logging.FieldEventType, "catalog_flush"),
		)
		return nil
	}

	deleted, err := r.store.DeleteImages(context.WithoutCancel(ctx), ids)
	if err != nil {
		logging.ErrorWithContext(r.logger, "failed to remove catalog rows", "catalog_flush_failed",
			logging.Int("count", len(ids)),
			logging.Any("ids", ids),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "files were moved; delete these ids from Images manually or restore the files"),
		)
		return fmt.Errorf("remove %d catalog rows: %w", len(ids), err)
	}
	r.report.Deleted += deleted
	r.logger.Info("removed catalog rows",
		logging.Int("count", len(ids)),
		logging.Int64("deleted", deleted),
		logging.Any("ids", ids),
		logging.String(logging.FieldEventType, "catalog_flush"),
	)
	return nil
}

func displayPath(path string, img catalog.Image) string {
	if path != "" {
		return path
	}
	return strings.TrimSuffix(img.RelativePath, "/") + "/" + img.Name
}
