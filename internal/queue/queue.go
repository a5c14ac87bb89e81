package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobType defines the type of job
type JobType string

const (
	// JobTypeEvaluateEntity re-runs the active rule set against one entity
	// snapshot, e.g. after a submission or vendor update.
	JobTypeEvaluateEntity JobType = "evaluate_entity"
	// JobTypeExpirySweep re-evaluates entities whose date-sensitive rules may
	// have flipped since the last pass.
	JobTypeExpirySweep JobType = "document_expiry_sweep"
	// JobTypeSeedCountryDefaults seeds a tenant's default rule set from the
	// country configuration.
	JobTypeSeedCountryDefaults JobType = "seed_country_defaults"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents a background job
type Job struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count" gorm:"default:0"`
	MaxRetries int             `json:"max_retries" gorm:"default:3"`
	NextRetry  *time.Time      `json:"next_retry,omitempty"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BeforeCreate generates the ID when the database does not
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// JobHandler processes one job payload
type JobHandler func(job Job) (interface{}, error)

// Queue is a database-backed job queue polled by a single worker loop.
// Evaluation work is append-only and idempotent, so at-least-once delivery
// is acceptable.
type Queue struct {
	db       *gorm.DB
	handlers map[JobType]JobHandler
	stop     chan struct{}
}

// NewQueue creates a new job queue
func NewQueue(db *gorm.DB) *Queue {
	return &Queue{
		db:       db,
		handlers: make(map[JobType]JobHandler),
		stop:     make(chan struct{}),
	}
}

// RegisterHandler registers a handler for a job type
func (q *Queue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.handlers[jobType] = handler
}

// EnqueueJob adds a job to the queue
func (q *Queue) EnqueueJob(jobType JobType, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := Job{
		Type:       jobType,
		Payload:    data,
		Status:     JobStatusPending,
		MaxRetries: 3,
	}
	if err := q.db.Create(&job).Error; err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID.String(), nil
}

// GetJob loads a job by id
func (q *Queue) GetJob(jobID string) (*Job, error) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return nil, fmt.Errorf("invalid job id: %w", err)
	}
	var job Job
	if err := q.db.First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// StartProcessing polls for pending jobs until Stop is called
func (q *Queue) StartProcessing() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.processPending()
		}
	}
}

// Stop stops the processing loop
func (q *Queue) Stop() {
	close(q.stop)
}

func (q *Queue) processPending() {
	var jobs []Job
	now := time.Now()
	err := q.db.
		Where("status = ? AND (next_retry IS NULL OR next_retry <= ?)", JobStatusPending, now).
		Order("created_at ASC").
		Limit(10).
		Find(&jobs).Error
	if err != nil {
		log.Printf("queue: failed to fetch pending jobs: %v", err)
		return
	}

	for _, job := range jobs {
		q.processJob(job)
	}
}

func (q *Queue) processJob(job Job) {
	handler, ok := q.handlers[job.Type]
	if !ok {
		q.markFailed(job, fmt.Errorf("no handler registered for job type %s", job.Type))
		return
	}

	if err := q.db.Model(&job).Update("status", JobStatusProcessing).Error; err != nil {
		log.Printf("queue: failed to claim job %s: %v", job.ID, err)
		return
	}

	result, err := handler(job)
	if err != nil {
		job.RetryCount++
		if job.RetryCount >= job.MaxRetries {
			q.markFailed(job, err)
			return
		}
		// Exponential backoff between retries
		retryAt := time.Now().Add(time.Duration(1<<job.RetryCount) * time.Minute)
		updates := map[string]interface{}{
			"status":      JobStatusPending,
			"retry_count": job.RetryCount,
			"next_retry":  retryAt,
			"error":       err.Error(),
		}
		if err := q.db.Model(&job).Updates(updates).Error; err != nil {
			log.Printf("queue: failed to schedule retry for job %s: %v", job.ID, err)
		}
		return
	}

	updates := map[string]interface{}{
		"status": JobStatusCompleted,
		"error":  "",
	}
	if result != nil {
		if data, marshalErr := json.Marshal(result); marshalErr == nil {
			updates["result"] = data
		}
	}
	if err := q.db.Model(&job).Updates(updates).Error; err != nil {
		log.Printf("queue: failed to complete job %s: %v", job.ID, err)
	}
}

func (q *Queue) markFailed(job Job, cause error) {
	updates := map[string]interface{}{
		"status": JobStatusFailed,
		"error":  cause.Error(),
	}
	if err := q.db.Model(&job).Updates(updates).Error; err != nil {
		log.Printf("queue: failed to mark job %s failed: %v", job.ID, err)
	}
}
