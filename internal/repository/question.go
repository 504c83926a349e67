package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"millionaire-bot/internal/model"
)

// ErrQuestionNotFound is returned when a question id does not resolve.
var ErrQuestionNotFound = errors.New("question not found")

const questionColumns = `id, question_number, game_mode, tournament_id, text,
	option_a, option_b, option_c, option_d, correct_option, times_asked, times_correct`

// QuestionRepository serves question content.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository instance.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func scanQuestion(row pgx.Row) (*model.Question, error) {
	var q model.Question
	var correct string
	err := row.Scan(
		&q.ID,
		&q.QuestionNumber,
		&q.Pool,
		&q.TournamentID,
		&q.Text,
		&q.Options[model.LetterA],
		&q.Options[model.LetterB],
		&q.Options[model.LetterC],
		&q.Options[model.LetterD],
		&correct,
		&q.TimesAsked,
		&q.TimesCorrect,
	)
	if err != nil {
		return nil, err
	}
	letter, ok := model.ParseLetter(correct)
	if !ok {
		return nil, fmt.Errorf("question %d has invalid correct option %q", q.ID, correct)
	}
	q.Correct = letter
	return &q, nil
}

// Create stores a question and returns its id.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) (int64, error) {
	const query = `
		INSERT INTO questions (question_number, game_mode, tournament_id, text,
			option_a, option_b, option_c, option_d, correct_option)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		q.QuestionNumber, q.Pool, q.TournamentID, q.Text,
		q.Options[model.LetterA], q.Options[model.LetterB], q.Options[model.LetterC], q.Options[model.LetterD],
		q.Correct.String(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create question: %w", err)
	}
	return id, nil
}

// GetByDifficulty picks a random question for the rung and pool that is not in exclude.
// Tournament-specific questions are preferred when tournamentID is set.
// Returns nil, nil when nothing matches.
func (r *QuestionRepository) GetByDifficulty(ctx context.Context, number int, exclude []int64, pool model.QuestionPool, tournamentID *int64) (*model.Question, error) {
	const query = `
		SELECT ` + questionColumns + `
		FROM questions
		WHERE question_number = $1
			AND game_mode = $2
			AND NOT (id = ANY($3))
			AND (tournament_id IS NULL OR tournament_id = $4)
		ORDER BY (tournament_id IS NOT DISTINCT FROM $4) DESC, random()
		LIMIT 1
	`
	if exclude == nil {
		exclude = []int64{}
	}

	q, err := scanQuestion(r.pool.QueryRow(ctx, query, number, pool, exclude, tournamentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pick question: %w", err)
	}
	return q, nil
}

// GetByID retrieves a question by id.
func (r *QuestionRepository) GetByID(ctx context.Context, id int64) (*model.Question, error) {
	const query = `SELECT ` + questionColumns + ` FROM questions WHERE id = $1`

	q, err := scanQuestion(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// UpdateStats counts one answer to the question.
func (r *QuestionRepository) UpdateStats(ctx context.Context, id int64, correct bool) error {
	const query = `
		UPDATE questions
		SET times_asked = times_asked + 1,
			times_correct = times_correct + CASE WHEN $2 THEN 1 ELSE 0 END
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, id, correct); err != nil {
		return fmt.Errorf("failed to update question stats: %w", err)
	}
	return nil
}
