package orchestrator

import (
	"context"
	"errors"

	"story-canvas/internal/models"
	"story-canvas/internal/video"
	"story-canvas/pkg/taskmanager"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VideoOutcome - итог одной задачи генерации видео.
type VideoOutcome struct {
	URL string
	Err error
	// Superseded - задачу вытеснил более новый запрос, ее результат отброшен
	Superseded bool
}

// VideoStatusPayload - данные события video.status.
type VideoStatusPayload struct {
	Status string `json:"status"`
}

// VideoReadyPayload - данные события video.ready.
type VideoReadyPayload struct {
	URL string `json:"url"`
}

// AlertPayload - данные события alert.
type AlertPayload struct {
	Message string `json:"message"`
}

// OnVideoRequested проверяет предусловия синхронно и запускает генерацию в фоне.
// Новый запрос отменяет предыдущую задачу, ее результат отбрасывается.
// Итог приходит в канал (один раз) и событиями.
func (o *Orchestrator) OnVideoRequested(ctx context.Context) (<-chan VideoOutcome, error) {
	o.mu.Lock()
	if o.story == nil || o.current == nil {
		o.mu.Unlock()
		observe("video", models.ErrVideoPrerequisites)
		return nil, models.ErrVideoPrerequisites
	}

	req := video.Request{Story: o.story.Content}
	snap := *o.current
	req.Snapshot = &snap

	superseded := o.videoTaskID
	o.videoSeq++
	seq := o.videoSeq
	o.videoTaskID = uuid.UUID{}
	o.videoBusy = true
	o.videoURL = ""
	o.setVideoStatusLocked(VideoStatusStarting)
	o.publishStateLocked()
	o.mu.Unlock()

	if superseded != (uuid.UUID{}) {
		if err := o.tasks.CancelTask(superseded); err != nil {
			o.logger.Debug("Superseded video task already finished", zap.String("taskID", superseded.String()), zap.Error(err))
		} else {
			o.logger.Info("Cancelled superseded video task", zap.String("taskID", superseded.String()))
		}
	}

	out := make(chan VideoOutcome, 1)
	taskID, err := o.tasks.SubmitTaskWithOwner(ctx, taskVideo, func(taskCtx context.Context, _ interface{}) (interface{}, error) {
		o.mu.Lock()
		if seq == o.videoSeq {
			o.setVideoStatusLocked(VideoStatusRendering)
		}
		o.mu.Unlock()
		taskmanager.ReportProgress(taskCtx, 10, VideoStatusRendering)

		url, err := o.videos.Generate(taskCtx, req)
		out <- o.finishVideo(seq, url, err)
		close(out)
		if err != nil {
			return nil, err
		}
		return VideoReadyPayload{URL: url}, nil
	}, nil, o.sessionID)
	if err != nil {
		o.logger.Error("Failed to schedule video task", zap.Error(err))
		o.mu.Lock()
		if seq == o.videoSeq {
			o.videoBusy = false
			o.setVideoStatusLocked("")
			o.publishStateLocked()
		}
		o.mu.Unlock()
		observe("video", err)
		return nil, err
	}

	o.mu.Lock()
	stale := seq != o.videoSeq
	if !stale && o.videoBusy {
		o.videoTaskID = taskID
	}
	o.mu.Unlock()

	// Более новый запрос пришел, пока задача ставилась, и не знал ее id.
	if stale {
		if err := o.tasks.CancelTask(taskID); err == nil {
			o.logger.Info("Cancelled video task superseded during submit", zap.String("taskID", taskID.String()))
		}
	}
	return out, nil
}

// finishVideo сводит итог задачи в состояние, если задачу никто не вытеснил.
func (o *Orchestrator) finishVideo(seq uint64, url string, err error) VideoOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()

	if seq != o.videoSeq {
		o.logger.Info("Discarding result of superseded video task", zap.Bool("failed", err != nil))
		return VideoOutcome{URL: url, Err: err, Superseded: true}
	}

	o.videoBusy = false
	o.videoTaskID = uuid.UUID{}
	defer o.publishStateLocked()
	observe("video", err)

	switch {
	case errors.Is(err, context.Canceled):
		o.logger.Info("Video task cancelled")
		o.setVideoStatusLocked("")
	case err != nil:
		o.logger.Error("Failed to generate video", zap.Error(err))
		o.setVideoStatusLocked("")
		o.publishLocked(eventAlert, AlertPayload{Message: videoFailedPrefix + err.Error()})
	case url == "":
		o.logger.Warn("Video succeeded but no result URL could be extracted")
		o.setVideoStatusLocked("")
	default:
		o.videoURL = url
		o.setVideoStatusLocked(VideoStatusDone)
		o.publishLocked(eventVideoReady, VideoReadyPayload{URL: url})
		o.appendLocked(models.RoleSystem, VideoReadyNote)
	}
	return VideoOutcome{URL: url, Err: err}
}

func (o *Orchestrator) setVideoStatusLocked(status string) {
	o.videoStatus = status
	o.publishLocked(eventVideoStatus, VideoStatusPayload{Status: status})
}
