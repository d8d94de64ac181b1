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

func newTemplateAnalyzer() *TemplateAnalyzer {
	cfg := config.DefaultAnalyzerConfig()
	log := mocks.NewMockLogger()
	return NewTemplateAnalyzer(cfg, sqltext.NewResolver(&cfg.Sql, log), log)
}

func jspFile(name, content string) *scanner.ScannedFile {
	return &scanner.ScannedFile{
		Name:    name,
		RelPath: "web/" + name,
		Content: []byte(content),
		Hash:    "test-hash",
	}
}

func TestTemplateAnalyzer_CanHandle(t *testing.T) {
	a := newTemplateAnalyzer()

	assert.True(t, a.CanHandle(jspFile("list.jsp", "")))
	assert.True(t, a.CanHandle(jspFile("list.jspx", "")))
	assert.False(t, a.CanHandle(jspFile("Service.java", "")))
}

func TestTemplateAnalyzer_ScriptletFragments(t *testing.T) {
	a := newTemplateAnalyzer()

	source := `<html>
<%
    UserService service = new UserService();
    List users = service.listUsers();
%>
<body>
<%= users.size() %>
</body>
</html>
`
	facts, err := a.Extract(context.Background(), jspFile("list.jsp", source))
	require.NoError(t, err)

	assert.Equal(t, model.FileKindTemplate, facts.Kind)
	require.Len(t, facts.Fragments, 2)

	frag := facts.Fragments[0]
	assert.Equal(t, "scriptlet:1", frag.Name)
	assert.Equal(t, 2, frag.StartLine)
	assert.Contains(t, frag.UsedTypes, "UserService")
	require.Len(t, frag.Calls, 1)
	assert.Equal(t, "service", frag.Calls[0].Receiver)
	assert.Equal(t, "listUsers", frag.Calls[0].MethodName)
}

func TestTemplateAnalyzer_EmbeddedSql(t *testing.T) {
	a := newTemplateAnalyzer()

	source := `<%
    ResultSet rs = stmt.executeQuery("SELECT id, user_name FROM users WHERE del_yn = 'N'");
%>
`
	facts, err := a.Extract(context.Background(), jspFile("report.jsp", source))
	require.NoError(t, err)
	require.Len(t, facts.Fragments, 1)

	sqlFacts := facts.Fragments[0].SqlFacts
	require.Len(t, sqlFacts, 1)
	assert.Equal(t, model.DMLKindSelect, sqlFacts[0].Statement.DML)
	require.Len(t, sqlFacts[0].Statement.Tables, 1)
	assert.Equal(t, "users", sqlFacts[0].Statement.Tables[0].Name)
}

func TestTemplateAnalyzer_DirectiveImports(t *testing.T) {
	a := newTemplateAnalyzer()

	source := `<%@ page import="com.example.UserService, com.example.model.*" %>
<html></html>
`
	facts, err := a.Extract(context.Background(), jspFile("page.jsp", source))
	require.NoError(t, err)
	require.Len(t, facts.Fragments, 1)
	assert.Equal(t, []string{"com.example.UserService"}, facts.Fragments[0].UsedTypes)
}

func TestTemplateAnalyzer_UseBeanAction(t *testing.T) {
	a := newTemplateAnalyzer()

	source := `<jsp:useBean id="svc" class="com.example.UserService" scope="page"/>
`
	facts, err := a.Extract(context.Background(), jspFile("bean.jsp", source))
	require.NoError(t, err)
	require.Len(t, facts.Fragments, 1)
	assert.Contains(t, facts.Fragments[0].UsedTypes, "com.example.UserService")
}

func TestTemplateAnalyzer_PlainTextNoFacts(t *testing.T) {
	a := newTemplateAnalyzer()

	source := `<html><body>Hello SELECT world</body></html>`
	facts, err := a.Extract(context.Background(), jspFile("static.jsp", source))
	require.NoError(t, err)
	assert.Empty(t, facts.Fragments)
}
