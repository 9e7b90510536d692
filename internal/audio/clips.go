package audio

import (
	"sync"
	"time"

	"story-canvas/internal/models"

	"github.com/google/uuid"
)

// Clip - синтезированный аудиофрагмент.
type Clip struct {
	ID          string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// ClipStore хранит аудио в памяти процесса ограниченное время.
type ClipStore struct {
	mu    sync.RWMutex
	clips map[string]Clip
	ttl   time.Duration
	now   func() time.Time
}

// NewClipStore создает хранилище. ttl <= 0 отключает устаревание.
func NewClipStore(ttl time.Duration) *ClipStore {
	return &ClipStore{
		clips: make(map[string]Clip),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Put сохраняет данные и возвращает id фрагмента.
func (s *ClipStore) Put(data []byte, contentType string) string {
	clip := Clip{
		ID:          uuid.NewString(),
		ContentType: contentType,
		Data:        data,
		CreatedAt:   s.now(),
	}
	s.mu.Lock()
	s.clips[clip.ID] = clip
	s.mu.Unlock()
	return clip.ID
}

// Get возвращает фрагмент или models.ErrClipNotFound.
func (s *ClipStore) Get(id string) (Clip, error) {
	s.mu.RLock()
	clip, ok := s.clips[id]
	s.mu.RUnlock()
	if !ok || s.expired(clip) {
		return Clip{}, models.ErrClipNotFound
	}
	return clip, nil
}

// Sweep удаляет устаревшие фрагменты и возвращает их число.
func (s *ClipStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, clip := range s.clips {
		if s.expired(clip) {
			delete(s.clips, id)
			removed++
		}
	}
	return removed
}

// Len - число хранимых фрагментов.
func (s *ClipStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clips)
}

func (s *ClipStore) expired(clip Clip) bool {
	return s.ttl > 0 && s.now().Sub(clip.CreatedAt) > s.ttl
}
