package analyses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/palmistry/constants"
	"github.com/joseph-ayodele/palmistry/internal/analysis"
	"github.com/joseph-ayodele/palmistry/internal/common"
	"github.com/joseph-ayodele/palmistry/internal/entity"
	"github.com/joseph-ayodele/palmistry/internal/repository"
)

const maxQuestionLength = 500

// Service handles reads on analyses and follow-up questions.
type Service struct {
	jobs      repository.JobRepository
	images    repository.ImageRepository
	followUps repository.FollowUpRepository
	answerer  analysis.Answerer
	logger    *slog.Logger

	askLocks sync.Map // job id -> *sync.Mutex
}

// NewService creates a new analyses service. answerer may be nil, in which
// case Ask reports the service as not configured.
func NewService(
	jobs repository.JobRepository,
	images repository.ImageRepository,
	followUps repository.FollowUpRepository,
	answerer analysis.Answerer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobs:      jobs,
		images:    images,
		followUps: followUps,
		answerer:  answerer,
		logger:    logger,
	}
}

// Detail is a job together with its image and question budget.
type Detail struct {
	*entity.AnalysisJob
	Filename           string `json:"filename"`
	Hand               string `json:"hand"`
	QuestionsAsked     int    `json:"questions_asked"`
	QuestionsRemaining int    `json:"questions_remaining"`
}

func parseJobID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if v := common.NewValidator().Field("id", raw, common.Required, common.UUID); v.HasErrors() {
		return uuid.Nil, common.NewAppError("INVALID_ID", "analysis id must be a UUID", common.ErrInvalidInput)
	}
	return uuid.MustParse(raw), nil
}

func (s *Service) load(ctx context.Context, ownerID, rawID string) (*entity.AnalysisJob, error) {
	id, err := parseJobID(rawID)
	if err != nil {
		return nil, err
	}
	return s.jobs.GetForOwner(ctx, id, ownerID)
}

// Status returns the wire status of one of the owner's jobs.
func (s *Service) Status(ctx context.Context, ownerID, rawID string) (entity.StatusView, error) {
	job, err := s.load(ctx, ownerID, rawID)
	if err != nil {
		return entity.StatusView{}, err
	}
	return job.View(), nil
}

func (s *Service) Get(ctx context.Context, ownerID, rawID string) (*Detail, error) {
	job, err := s.load(ctx, ownerID, rawID)
	if err != nil {
		return nil, err
	}
	img, err := s.images.GetByID(ctx, job.ImageID)
	if err != nil {
		s.logger.Error("image lookup failed for analysis", "job_id", job.ID, "image_id", job.ImageID, "error", err)
		return nil, err
	}
	asked, err := s.followUps.CountByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	return &Detail{
		AnalysisJob:        job,
		Filename:           img.Filename,
		Hand:               img.Hand,
		QuestionsAsked:     asked,
		QuestionsRemaining: max(0, constants.MaxFollowUpQuestions-asked),
	}, nil
}

// List returns the owner's analyses, newest first.
func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]*entity.AnalysisJob, error) {
	jobs, err := s.jobs.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		s.logger.Error("failed to list analyses", "owner_id", ownerID, "error", err)
		return nil, err
	}
	s.logger.Debug("analyses listed", "owner_id", ownerID, "count", len(jobs))
	return jobs, nil
}

func (s *Service) Dashboard(ctx context.Context, ownerID string) (entity.DashboardStats, error) {
	return s.jobs.CountByStatus(ctx, ownerID)
}

// Questions lists the follow-ups asked about one analysis, oldest first.
func (s *Service) Questions(ctx context.Context, ownerID, rawID string) ([]*entity.FollowUp, error) {
	job, err := s.load(ctx, ownerID, rawID)
	if err != nil {
		return nil, err
	}
	return s.followUps.ListByJob(ctx, job.ID)
}

// Ask answers a follow-up question about a completed analysis. Each analysis
// accepts at most constants.MaxFollowUpQuestions questions.
func (s *Service) Ask(ctx context.Context, ownerID, rawID, question string) (*entity.FollowUp, error) {
	question = strings.TrimSpace(question)
	var v common.Validator
	v.Field("question", question, common.Required, common.MaxLength(maxQuestionLength))
	if err := v.Err(); err != nil {
		return nil, err
	}

	job, err := s.load(ctx, ownerID, rawID)
	if err != nil {
		return nil, err
	}
	if job.Status != constants.JobStatusCompleted {
		return nil, common.NewAppError("ANALYSIS_NOT_READY",
			fmt.Sprintf("questions can only be asked about completed analyses (status %s)", job.Status), common.ErrConflict)
	}
	if s.answerer == nil {
		return nil, common.NewAppError("ANSWERS_UNAVAILABLE", "question answering is not configured", analysis.ErrNotConfigured)
	}

	mu := s.lockFor(job.ID)
	mu.Lock()
	defer mu.Unlock()

	history, err := s.followUps.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if len(history) >= constants.MaxFollowUpQuestions {
		s.logger.Warn("question limit reached", "job_id", job.ID, "owner_id", ownerID)
		return nil, limitError()
	}

	turns := make([]analysis.FollowUpTurn, 0, len(history))
	for _, f := range history {
		turns = append(turns, analysis.FollowUpTurn{Question: f.Question, Answer: f.Answer})
	}
	img, err := s.images.GetByID(ctx, job.ImageID)
	if err != nil {
		return nil, err
	}

	answer, err := s.answerer.Answer(ctx, analysis.AnswerRequest{
		Reading:  job.Result,
		Hand:     img.Hand,
		Question: question,
		History:  turns,
	})
	if err != nil {
		s.logger.Error("follow-up answer failed", "job_id", job.ID, "error", err)
		return nil, common.NewAppError("ANSWER_FAILED", "could not answer the question right now", err)
	}

	f, err := s.followUps.Create(ctx, job.ID, question, answer, constants.MaxFollowUpQuestions)
	if errors.Is(err, repository.ErrFollowUpLimit) {
		return nil, limitError()
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("follow-up answered", "job_id", job.ID, "follow_up_id", f.ID, "asked", len(history)+1)
	return f, nil
}

func limitError() error {
	return common.NewAppError("QUESTION_LIMIT",
		fmt.Sprintf("an analysis accepts at most %d questions", constants.MaxFollowUpQuestions), common.ErrConflict)
}

// lockFor keeps concurrent questions in this process from paying for an
// answer that the limit would then reject.
func (s *Service) lockFor(id uuid.UUID) *sync.Mutex {
	mu, _ := s.askLocks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
