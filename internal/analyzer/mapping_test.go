package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadb-builder/internal/config"
	"metadb-builder/internal/model"
	"metadb-builder/internal/scanner"
	"metadb-builder/internal/sqltext"
	"metadb-builder/test/mocks"
)

func newMappingAnalyzer() *MappingAnalyzer {
	cfg := config.DefaultAnalyzerConfig()
	log := mocks.NewMockLogger()
	return NewMappingAnalyzer(cfg, sqltext.NewResolver(&cfg.Sql, log), log)
}

func xmlFile(name, content string) *scanner.ScannedFile {
	return &scanner.ScannedFile{
		Name:    name,
		RelPath: "src/main/resources/mapper/" + name,
		Content: []byte(content),
		Hash:    "test-hash",
	}
}

func TestMappingAnalyzer_CanHandle(t *testing.T) {
	a := newMappingAnalyzer()

	mapper := xmlFile("UserMapper.xml", `<mapper namespace="user"></mapper>`)
	assert.True(t, a.CanHandle(mapper))

	pom := xmlFile("pom.xml", `<project><modelVersion>4.0.0</modelVersion></project>`)
	assert.False(t, a.CanHandle(pom))

	java := xmlFile("Service.java", `<mapper/>`)
	assert.False(t, a.CanHandle(java))
}

func TestMappingAnalyzer_StaticStatements(t *testing.T) {
	a := newMappingAnalyzer()

	source := `<?xml version="1.0" encoding="UTF-8"?>
<mapper namespace="com.example.UserMapper">
    <select id="selectUser">
        SELECT id, user_name FROM users WHERE id = #{id}
    </select>
    <insert id="insertAudit">
        INSERT INTO user_audit_logs (user_id, action, created_at) VALUES (#{userId}, #{action}, #{now})
    </insert>
</mapper>
`
	facts, err := a.Extract(context.Background(), xmlFile("UserMapper.xml", source))
	require.NoError(t, err)

	assert.Equal(t, model.FileKindMappingDescriptor, facts.Kind)
	require.Len(t, facts.SqlUnits, 2)

	sel := facts.SqlUnits[0]
	assert.Equal(t, "selectUser", sel.ID)
	assert.Equal(t, "com.example.UserMapper", sel.Namespace)
	assert.Equal(t, model.DMLKindSelect, sel.Statement.DML)
	require.Len(t, sel.Statement.Tables, 1)
	assert.Equal(t, "users", sel.Statement.Tables[0].Name)

	ins := facts.SqlUnits[1]
	assert.Equal(t, model.DMLKindInsert, ins.Statement.DML)
	assert.Equal(t, 1.0, ins.Statement.Confidence)
	require.Len(t, ins.Statement.Tables, 1)
	assert.Equal(t, "user_audit_logs", ins.Statement.Tables[0].Name)
}

func TestMappingAnalyzer_DynamicTags(t *testing.T) {
	a := newMappingAnalyzer()

	source := `<mapper namespace="user">
    <select id="search">
        SELECT id FROM users
        <where>
            <if test="status != null">AND status = #{status}</if>
        </where>
    </select>
</mapper>
`
	facts, err := a.Extract(context.Background(), xmlFile("UserMapper.xml", source))
	require.NoError(t, err)
	require.Len(t, facts.SqlUnits, 1)

	st := facts.SqlUnits[0].Statement
	assert.Equal(t, model.DMLKindSelect, st.DML)
	assert.Equal(t, sqltext.ConfidenceConditional, st.Confidence)
}

func TestMappingAnalyzer_ForeachLoop(t *testing.T) {
	a := newMappingAnalyzer()

	source := `<mapper namespace="order">
    <select id="findByNos">
        SELECT id FROM orders WHERE order_no IN
        <foreach collection="nos" item="no" open="(" close=")" separator=",">#{no}</foreach>
    </select>
</mapper>
`
	facts, err := a.Extract(context.Background(), xmlFile("OrderMapper.xml", source))
	require.NoError(t, err)
	require.Len(t, facts.SqlUnits, 1)

	st := facts.SqlUnits[0].Statement
	assert.Equal(t, sqltext.ConfidenceLoop, st.Confidence)
	require.Len(t, st.Tables, 1)
	assert.Equal(t, "orders", st.Tables[0].Name)
}

func TestMappingAnalyzer_IncludeReusableFragment(t *testing.T) {
	a := newMappingAnalyzer()

	source := `<mapper namespace="user">
    <sql id="baseColumns">id, user_name, email</sql>
    <select id="selectAll">
        SELECT <include refid="baseColumns"/> FROM users
    </select>
</mapper>
`
	facts, err := a.Extract(context.Background(), xmlFile("UserMapper.xml", source))
	require.NoError(t, err)
	require.Len(t, facts.SqlUnits, 1)

	st := facts.SqlUnits[0].Statement
	require.Len(t, st.Tables, 1)
	assert.ElementsMatch(t, []string{"id", "user_name", "email"}, st.Tables[0].Columns)
}

func TestMappingAnalyzer_NonSqlStatementSkipped(t *testing.T) {
	a := newMappingAnalyzer()

	source := `<mapper namespace="user">
    <select id="broken">just some text without a statement</select>
    <select id="valid">SELECT id FROM users</select>
</mapper>
`
	facts, err := a.Extract(context.Background(), xmlFile("UserMapper.xml", source))
	require.NoError(t, err)
	require.Len(t, facts.SqlUnits, 1)
	assert.Equal(t, "valid", facts.SqlUnits[0].ID)
}
