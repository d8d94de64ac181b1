package sqltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadb-builder/internal/config"
	"metadb-builder/internal/errs"
	"metadb-builder/internal/model"
	"metadb-builder/test/mocks"
)

func newTestResolver() *Resolver {
	cfg := config.DefaultAnalyzerConfig()
	return NewResolver(&cfg.Sql, mocks.NewMockLogger())
}

func TestResolveText_SimpleSelect(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveText("SELECT id, user_name FROM users WHERE id = ?")
	require.NoError(t, err)

	assert.Equal(t, model.DMLKindSelect, st.DML)
	require.Len(t, st.Tables, 1)
	assert.Equal(t, "users", st.Tables[0].Name)
	assert.Equal(t, ConfidenceStatic, st.Confidence)
	assert.ElementsMatch(t, []string{"id", "user_name"}, st.Tables[0].Columns)
}

func TestResolveText_RejectsPlainText(t *testing.T) {
	r := newTestResolver()

	_, err := r.ResolveText("This is just a regular string with SELECT word")
	assert.ErrorIs(t, err, errs.ErrNotSQL)
}

func TestResolveText_RejectsKeywordWithoutShape(t *testing.T) {
	r := newTestResolver()

	cases := []string{
		"SELECT something went wrong",
		"UPDATE your profile now",
		"DELETE the old records first",
		"INSERT coin to continue",
		"MERGE the two branches",
	}
	for _, text := range cases {
		_, err := r.ResolveText(text)
		assert.ErrorIs(t, err, errs.ErrNotSQL, "expected rejection: %s", text)
	}
}

func TestResolveText_InsertSingleTable(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveText("INSERT INTO user_audit_logs (user_id, action, created_at) VALUES (?, ?, ?)")
	require.NoError(t, err)

	assert.Equal(t, model.DMLKindInsert, st.DML)
	require.Len(t, st.Tables, 1)
	assert.Equal(t, "user_audit_logs", st.Tables[0].Name)
	assert.Equal(t, ConfidenceStatic, st.Tables[0].Confidence)
	assert.ElementsMatch(t, []string{"user_id", "action", "created_at"}, st.Tables[0].Columns)
}

func TestResolveText_MergeWithSubquery(t *testing.T) {
	r := newTestResolver()

	text := `MERGE INTO user_statistics us
		USING (SELECT u.id, COUNT(o.id) AS order_count
		       FROM users u JOIN orders o ON u.id = o.user_id
		       GROUP BY u.id) s
		ON (us.user_id = s.id)
		WHEN MATCHED THEN UPDATE SET us.order_count = s.order_count
		WHEN NOT MATCHED THEN INSERT (user_id, order_count) VALUES (s.id, s.order_count)`

	st, err := r.ResolveText(text)
	require.NoError(t, err)

	assert.Equal(t, model.DMLKindMerge, st.DML)

	names := make([]string, 0, len(st.Tables))
	for _, ref := range st.Tables {
		names = append(names, ref.Name)
	}
	assert.ElementsMatch(t, []string{"user_statistics", "users", "orders"}, names)
	for _, ref := range st.Tables {
		assert.Equal(t, ConfidenceStatic, ref.Confidence, "table %s", ref.Name)
	}
}

func TestResolveText_ImplicitJoinFromList(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveText("SELECT u.name, o.total FROM users u, orders o WHERE u.id = o.user_id")
	require.NoError(t, err)

	require.Len(t, st.Tables, 2)
	assert.Equal(t, "users", st.Tables[0].Name)
	assert.Equal(t, "u", st.Tables[0].Alias)
	assert.Equal(t, "orders", st.Tables[1].Name)
	assert.Contains(t, st.Tables[0].Columns, "name")
	assert.Contains(t, st.Tables[1].Columns, "total")
}

func TestResolveText_OwnerQualifiedTable(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveText("DELETE FROM app.session_tokens WHERE expired_at < ?")
	require.NoError(t, err)

	require.Len(t, st.Tables, 1)
	assert.Equal(t, "app", st.Tables[0].Owner)
	assert.Equal(t, "session_tokens", st.Tables[0].Name)
}

func TestResolveText_UpdateSetColumns(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveText("UPDATE users SET user_name = ?, email = ? WHERE id = ?")
	require.NoError(t, err)

	assert.Equal(t, model.DMLKindUpdate, st.DML)
	require.Len(t, st.Tables, 1)
	assert.Equal(t, "users", st.Tables[0].Name)
	assert.ElementsMatch(t, []string{"user_name", "email"}, st.Tables[0].Columns)
}

func TestResolveFragments_ConditionalBranch(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveFragments([]*Fragment{
		Literal("SELECT id FROM users"),
		Conditional("status != null", Literal(" JOIN user_status st ON st.user_id = users.id")),
	})
	require.NoError(t, err)

	require.Len(t, st.Tables, 2)
	assert.Equal(t, "users", st.Tables[0].Name)
	assert.False(t, st.Tables[0].IsConditional)

	assert.Equal(t, "user_status", st.Tables[1].Name)
	assert.True(t, st.Tables[1].IsConditional)
	assert.Equal(t, "status != null", st.Tables[1].Condition)
	assert.Equal(t, ConfidenceConditional, st.Tables[1].Confidence)
	assert.Equal(t, ConfidenceConditional, st.Confidence)
}

func TestResolveFragments_LoopConfidence(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveFragments([]*Fragment{
		Literal("SELECT id FROM orders WHERE order_no IN ("),
		Loop("item in orderNos", Placeholder("item")),
		Literal(")"),
	})
	require.NoError(t, err)

	require.Len(t, st.Tables, 1)
	assert.Equal(t, "orders", st.Tables[0].Name)
	assert.Less(t, st.Confidence, ConfidenceStatic)
}

func TestResolveFragments_LoopSynthesizedTable(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveFragments([]*Fragment{
		Literal("SELECT id FROM "),
		Loop("shard in shards", Literal("order_shard")),
		Literal(" WHERE id = ?"),
	})
	require.NoError(t, err)

	require.Len(t, st.Tables, 1)
	assert.Equal(t, "order_shard", st.Tables[0].Name)
	assert.True(t, st.Tables[0].IsConditional)
	assert.Equal(t, ConfidenceLoop, st.Tables[0].Confidence)
	assert.Equal(t, ConfidenceLoop, st.Confidence)
}

func TestResolveFragments_PlaceholderNeverTableName(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveFragments([]*Fragment{
		Literal("SELECT id FROM "),
		Placeholder("tableName"),
		Literal(" WHERE id = ?"),
	})
	require.NoError(t, err)
	assert.Empty(t, st.Tables)
}

func TestResolveText_SubqueryTables(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveText("SELECT id FROM users WHERE id IN (SELECT user_id FROM orders WHERE total > 100)")
	require.NoError(t, err)

	names := make([]string, 0, len(st.Tables))
	for _, ref := range st.Tables {
		names = append(names, ref.Name)
	}
	assert.ElementsMatch(t, []string{"users", "orders"}, names)
}

func TestResolveText_CommentsAndLiteralsIgnored(t *testing.T) {
	r := newTestResolver()

	text := `SELECT id -- from fake_table
		FROM users /* join another_fake */
		WHERE user_name = 'FROM not_a_table'`

	st, err := r.ResolveText(text)
	require.NoError(t, err)

	require.Len(t, st.Tables, 1)
	assert.Equal(t, "users", st.Tables[0].Name)
}

func TestResolveText_UnbalancedParensRejected(t *testing.T) {
	r := newTestResolver()

	_, err := r.ResolveText("SELECT id FROM users WHERE id IN (1, 2")
	assert.ErrorIs(t, err, errs.ErrNotSQL)
}

func TestResolveText_MyBatisPlaceholders(t *testing.T) {
	r := newTestResolver()

	st, err := r.ResolveText("SELECT id FROM users WHERE id = #{id} AND tenant = ${tenant} AND name = :name")
	require.NoError(t, err)

	require.Len(t, st.Tables, 1)
	assert.Equal(t, "users", st.Tables[0].Name)
}
