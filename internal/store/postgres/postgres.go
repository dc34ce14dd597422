// Package postgres backs the Store with Postgres through the pgx stdlib
// driver. Schema migrations live in infra/migrations.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"agents",
		"posts",
		"votes",
		"communities",
		"community_memberships",
		"post_check_markers",
		"wake_logs",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run infra/migrations/001_init.sql)", table)
		}
	}
	return nil
}

const agentColumns = `id, user_id, name, personality, traits, interests, model, provider,
	autonomy_mode, max_posts_per_hour, daily_budget, daily_spent, total_spent,
	active_hours_start, active_hours_end, is_active, last_wake_time, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (store.Agent, error) {
	var agent store.Agent
	var traits, interests []byte
	var lastWake sql.NullTime
	err := row.Scan(
		&agent.ID,
		&agent.UserID,
		&agent.Name,
		&agent.Personality,
		&traits,
		&interests,
		&agent.Model,
		&agent.Provider,
		&agent.AutonomyMode,
		&agent.MaxPostsPerHour,
		&agent.DailyBudget,
		&agent.DailySpent,
		&agent.TotalSpent,
		&agent.ActiveHoursStart,
		&agent.ActiveHoursEnd,
		&agent.IsActive,
		&lastWake,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		return store.Agent{}, err
	}
	if len(traits) > 0 {
		_ = json.Unmarshal(traits, &agent.Traits)
	}
	if len(interests) > 0 {
		_ = json.Unmarshal(interests, &agent.Interests)
	}
	if lastWake.Valid {
		value := lastWake.Time
		agent.LastWakeTime = &value
	}
	return agent, nil
}

func (p *PostgresStore) FindAgentByID(ctx context.Context, agentID string) (*store.Agent, error) {
	query := fmt.Sprintf("SELECT %s FROM agents WHERE id = $1", agentColumns)
	agent, err := scanAgent(p.db.QueryRowContext(ctx, query, agentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &agent, nil
}

func (p *PostgresStore) FindEligibleAgentsForWake(ctx context.Context, autonomyModes []string) ([]store.Agent, error) {
	if len(autonomyModes) == 0 {
		return []store.Agent{}, nil
	}
	placeholders := make([]string, 0, len(autonomyModes))
	args := make([]any, 0, len(autonomyModes))
	for idx, mode := range autonomyModes {
		placeholders = append(placeholders, fmt.Sprintf("$%d", idx+1))
		args = append(args, mode)
	}
	query := fmt.Sprintf(
		"SELECT %s FROM agents WHERE is_active AND autonomy_mode IN (%s) ORDER BY id",
		agentColumns,
		strings.Join(placeholders, ", "),
	)
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agents := []store.Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (p *PostgresStore) UpdateAgent(ctx context.Context, agent store.Agent) error {
	traits, err := json.Marshal(agent.Traits)
	if err != nil {
		return err
	}
	interests, err := json.Marshal(agent.Interests)
	if err != nil {
		return err
	}
	const query = `
		UPDATE agents SET
			name = $2,
			personality = $3,
			traits = $4,
			interests = $5,
			model = $6,
			provider = $7,
			autonomy_mode = $8,
			max_posts_per_hour = $9,
			daily_budget = $10,
			daily_spent = $11,
			total_spent = $12,
			active_hours_start = $13,
			active_hours_end = $14,
			is_active = $15,
			last_wake_time = $16,
			updated_at = $17
		WHERE id = $1
	`
	_, err = p.db.ExecContext(
		ctx,
		query,
		agent.ID,
		agent.Name,
		agent.Personality,
		traits,
		interests,
		agent.Model,
		agent.Provider,
		agent.AutonomyMode,
		agent.MaxPostsPerHour,
		agent.DailyBudget,
		agent.DailySpent,
		agent.TotalSpent,
		agent.ActiveHoursStart,
		agent.ActiveHoursEnd,
		agent.IsActive,
		nullTimePtr(agent.LastWakeTime),
		agent.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetAgentAPIKey(ctx context.Context, agentID string) (string, error) {
	var encrypted sql.NullString
	err := p.db.QueryRowContext(ctx, "SELECT api_key_encrypted FROM agents WHERE id = $1", agentID).Scan(&encrypted)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return encrypted.String, nil
}

const postColumns = `id, agent_id, agent_name, community_id, content, parent_post_id,
	thread_id, depth, upvotes, downvotes, reply_count, cost, created_at`

func scanPost(row rowScanner) (store.Post, error) {
	var post store.Post
	var communityID, parentPostID sql.NullString
	err := row.Scan(
		&post.ID,
		&post.AgentID,
		&post.AgentName,
		&communityID,
		&post.Content,
		&parentPostID,
		&post.ThreadID,
		&post.Depth,
		&post.Upvotes,
		&post.Downvotes,
		&post.ReplyCount,
		&post.Cost,
		&post.CreatedAt,
	)
	if err != nil {
		return store.Post{}, err
	}
	post.CommunityID = communityID.String
	if parentPostID.Valid {
		value := parentPostID.String
		post.ParentPostID = &value
	}
	return post, nil
}

func (p *PostgresStore) queryPosts(ctx context.Context, query string, args ...any) ([]store.Post, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []store.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (p *PostgresStore) GetRecentPosts(ctx context.Context, excludeAgentID string, limit int) ([]store.Post, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM posts WHERE agent_id <> $1 ORDER BY created_at DESC LIMIT $2",
		postColumns,
	)
	return p.queryPosts(ctx, query, excludeAgentID, limit)
}

func (p *PostgresStore) GetMentionsAndReplies(ctx context.Context, agentID string, limit int) ([]store.Post, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM posts p
		WHERE p.agent_id <> $1
		  AND (
			EXISTS (SELECT 1 FROM posts parent WHERE parent.id = p.parent_post_id AND parent.agent_id = $1)
			OR p.content ILIKE '%%' || (SELECT '@' || name FROM agents WHERE id = $1) || '%%'
		  )
		ORDER BY p.created_at DESC
		LIMIT $2
	`, prefixColumns(postColumns, "p"))
	return p.queryPosts(ctx, query, agentID, limit)
}

func (p *PostgresStore) GetRecentCommunityPosts(ctx context.Context, communityIDs []string, limit int) ([]store.Post, error) {
	if len(communityIDs) == 0 {
		return []store.Post{}, nil
	}
	placeholders := make([]string, 0, len(communityIDs))
	args := make([]any, 0, len(communityIDs)+1)
	for idx, communityID := range communityIDs {
		placeholders = append(placeholders, fmt.Sprintf("$%d", idx+1))
		args = append(args, communityID)
	}
	args = append(args, limit)
	query := fmt.Sprintf(
		"SELECT %s FROM posts WHERE community_id IN (%s) ORDER BY created_at DESC LIMIT $%d",
		postColumns,
		strings.Join(placeholders, ", "),
		len(communityIDs)+1,
	)
	return p.queryPosts(ctx, query, args...)
}

func (p *PostgresStore) FindPostByID(ctx context.Context, postID string) (*store.Post, error) {
	query := fmt.Sprintf("SELECT %s FROM posts WHERE id = $1", postColumns)
	post, err := scanPost(p.db.QueryRowContext(ctx, query, postID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

func (p *PostgresStore) GetLastPostByAgent(ctx context.Context, agentID string) (*store.Post, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM posts WHERE agent_id = $1 ORDER BY created_at DESC LIMIT 1",
		postColumns,
	)
	post, err := scanPost(p.db.QueryRowContext(ctx, query, agentID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

func (p *PostgresStore) FindPostsToReview(ctx context.Context, agentID string, since time.Time) ([]store.Post, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM posts WHERE agent_id = $1 AND created_at >= $2 ORDER BY created_at DESC",
		postColumns,
	)
	return p.queryPosts(ctx, query, agentID, since)
}

func (p *PostgresStore) GetNewRepliesForPost(ctx context.Context, agentID string, postID string) ([]store.Post, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM posts
		WHERE parent_post_id = $2
		  AND agent_id <> $1
		  AND created_at > COALESCE(
			(SELECT checked_at FROM post_check_markers WHERE post_id = $2),
			'-infinity'::timestamptz
		  )
		ORDER BY created_at DESC
	`, postColumns)
	return p.queryPosts(ctx, query, agentID, postID)
}

func (p *PostgresStore) MarkPostsAsChecked(ctx context.Context, agentID string, postIDs []string) error {
	const query = `
		INSERT INTO post_check_markers (post_id, agent_id, checked_at)
		SELECT id, agent_id, now() FROM posts WHERE id = $1 AND agent_id = $2
		ON CONFLICT (post_id) DO UPDATE SET checked_at = now()
	`
	for _, postID := range postIDs {
		if _, err := p.db.ExecContext(ctx, query, postID, agentID); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStore) GetDailyNewPostCount(ctx context.Context, agentID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(
		ctx,
		"SELECT COUNT(*) FROM posts WHERE agent_id = $1 AND created_at > now() - interval '24 hours'",
		agentID,
	).Scan(&count)
	return count, err
}

func (p *PostgresStore) CountPostsByAgentInLastHour(ctx context.Context, agentID string, includeReplies bool) (int, error) {
	query := "SELECT COUNT(*) FROM posts WHERE agent_id = $1 AND created_at > now() - interval '1 hour'"
	if !includeReplies {
		query += " AND parent_post_id IS NULL"
	}
	var count int
	err := p.db.QueryRowContext(ctx, query, agentID).Scan(&count)
	return count, err
}

func (p *PostgresStore) CreatePost(ctx context.Context, post store.Post) error {
	const query = `
		INSERT INTO posts (
			id, agent_id, agent_name, community_id, content, parent_post_id,
			thread_id, depth, upvotes, downvotes, reply_count, cost, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		post.ID,
		post.AgentID,
		post.AgentName,
		nullString(post.CommunityID),
		post.Content,
		nullStringPtr(post.ParentPostID),
		post.ThreadID,
		post.Depth,
		post.Upvotes,
		post.Downvotes,
		post.ReplyCount,
		post.Cost,
		post.CreatedAt,
	)
	return err
}

func (p *PostgresStore) IncrementReplyCount(ctx context.Context, postID string) error {
	_, err := p.db.ExecContext(ctx, "UPDATE posts SET reply_count = reply_count + 1 WHERE id = $1", postID)
	return err
}

func (p *PostgresStore) GetAgentFollowedCommunities(ctx context.Context, agentID string) ([]store.Community, error) {
	const query = `
		SELECT c.id, c.name, c.privacy
		FROM communities c
		JOIN community_memberships m ON m.community_id = c.id
		WHERE m.agent_id = $1 AND m.status = 'approved'
		ORDER BY c.id
	`
	rows, err := p.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	communities := []store.Community{}
	for rows.Next() {
		var community store.Community
		if err := rows.Scan(&community.ID, &community.Name, &community.Privacy); err != nil {
			return nil, err
		}
		communities = append(communities, community)
	}
	return communities, rows.Err()
}

func (p *PostgresStore) GetCommunityPrivacy(ctx context.Context, communityID string) (string, error) {
	var privacy string
	err := p.db.QueryRowContext(ctx, "SELECT privacy FROM communities WHERE id = $1", communityID).Scan(&privacy)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return privacy, nil
}

func (p *PostgresStore) GetMembershipStatus(ctx context.Context, agentID string, communityID string) (string, error) {
	var status string
	err := p.db.QueryRowContext(
		ctx,
		"SELECT status FROM community_memberships WHERE agent_id = $1 AND community_id = $2",
		agentID,
		communityID,
	).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return status, nil
}

func (p *PostgresStore) JoinCommunity(ctx context.Context, agentID string, communityID string, status string) error {
	const query = `
		INSERT INTO community_memberships (agent_id, community_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (agent_id, community_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = now()
	`
	_, err := p.db.ExecContext(ctx, query, agentID, communityID, status)
	return err
}

func (p *PostgresStore) FindVoteByAgentAndPost(ctx context.Context, agentID string, postID string) (*store.Vote, error) {
	var vote store.Vote
	err := p.db.QueryRowContext(
		ctx,
		"SELECT agent_id, post_id, vote_type, created_at FROM votes WHERE agent_id = $1 AND post_id = $2",
		agentID,
		postID,
	).Scan(&vote.AgentID, &vote.PostID, &vote.Type, &vote.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &vote, nil
}

func (p *PostgresStore) CreateVote(ctx context.Context, vote store.Vote) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const insertQuery = "INSERT INTO votes (agent_id, post_id, vote_type, created_at) VALUES ($1, $2, $3, $4)"
	if _, err := tx.ExecContext(ctx, insertQuery, vote.AgentID, vote.PostID, vote.Type, vote.CreatedAt); err != nil {
		return err
	}

	counterQuery := "UPDATE posts SET upvotes = upvotes + 1 WHERE id = $1"
	if vote.Type == store.VoteDown {
		counterQuery = "UPDATE posts SET downvotes = downvotes + 1 WHERE id = $1"
	}
	if _, err := tx.ExecContext(ctx, counterQuery, vote.PostID); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) GetVotesByAgent(ctx context.Context, agentID string, limit int) ([]store.Vote, error) {
	const query = `
		SELECT agent_id, post_id, vote_type, created_at
		FROM votes
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	votes := []store.Vote{}
	for rows.Next() {
		var vote store.Vote
		if err := rows.Scan(&vote.AgentID, &vote.PostID, &vote.Type, &vote.CreatedAt); err != nil {
			return nil, err
		}
		votes = append(votes, vote)
	}
	return votes, rows.Err()
}

func (p *PostgresStore) CreateWakeLog(ctx context.Context, entry store.WakeLog) error {
	actionTypes, err := json.Marshal(entry.ActionTypes)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO wake_logs (
			id, agent_id, wake_time, actions_performed, action_types,
			total_cost, tokens_used, forced, status, error_message, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = p.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.AgentID,
		entry.WakeTime,
		entry.ActionsPerformed,
		actionTypes,
		entry.TotalCost,
		entry.TokensUsed,
		entry.Forced,
		entry.Status,
		nullString(entry.ErrorMessage),
		entry.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListWakeLogs(ctx context.Context, agentID string, limit int) ([]store.WakeLog, error) {
	const query = `
		SELECT id, agent_id, wake_time, actions_performed, action_types,
			total_cost, tokens_used, forced, status, error_message, created_at
		FROM wake_logs
		WHERE agent_id = $1
		ORDER BY wake_time DESC
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []store.WakeLog{}
	for rows.Next() {
		var entry store.WakeLog
		var actionTypes []byte
		var errorMessage sql.NullString
		err := rows.Scan(
			&entry.ID,
			&entry.AgentID,
			&entry.WakeTime,
			&entry.ActionsPerformed,
			&actionTypes,
			&entry.TotalCost,
			&entry.TokensUsed,
			&entry.Forced,
			&entry.Status,
			&errorMessage,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entry.ActionTypes = []string{}
		if len(actionTypes) > 0 {
			_ = json.Unmarshal(actionTypes, &entry.ActionTypes)
		}
		entry.ErrorMessage = errorMessage.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func prefixColumns(columns string, alias string) string {
	parts := strings.Split(columns, ",")
	prefixed := make([]string, 0, len(parts))
	for _, part := range parts {
		prefixed = append(prefixed, alias+"."+strings.TrimSpace(part))
	}
	return strings.Join(prefixed, ", ")
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullStringPtr(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullTimePtr(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}
