package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadb-builder/internal/analyzer"
	"metadb-builder/internal/config"
	"metadb-builder/internal/model"
	"metadb-builder/internal/sqltext"
	"metadb-builder/test/mocks"
)

func newTestResolver() *RelationshipResolver {
	return NewRelationshipResolver(&config.DefaultAnalyzerConfig().Layer, mocks.NewMockLogger())
}

func classFacts(filePath, className string, methods ...*analyzer.MethodFact) *analyzer.FileFacts {
	return &analyzer.FileFacts{
		FileName: filePath,
		FilePath: filePath,
		Kind:     model.FileKindClassSource,
		Classes: []*analyzer.ClassFact{
			{Name: className, StartLine: 1, EndLine: 50, Methods: methods},
		},
	}
}

func findEdges(g *Graph, relType model.RelType) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.Type == relType {
			out = append(out, e)
		}
	}
	return out
}

func TestResolve_CallByReceiverClass(t *testing.T) {
	r := newTestResolver()

	service := classFacts("src/service/UserService.java", "UserService",
		&analyzer.MethodFact{Name: "save", StartLine: 5, EndLine: 10, Calls: []*analyzer.CallFact{
			{Receiver: "UserDao", MethodName: "insert"},
		}})
	dao := classFacts("src/dao/UserDao.java", "UserDao",
		&analyzer.MethodFact{Name: "insert", StartLine: 5, EndLine: 10})

	g := r.Resolve([]*analyzer.FileFacts{service, dao}, nil)

	calls := findEdges(g, model.RelTypeCalls)
	require.Len(t, calls, 1)
	assert.Equal(t, ComponentKey{FilePath: "src/service/UserService.java", Name: "UserService.save"}, calls[0].Src)
	assert.Equal(t, ComponentKey{FilePath: "src/dao/UserDao.java", Name: "UserDao.insert"}, calls[0].Dst)
	assert.Equal(t, 1.0, calls[0].Confidence)
}

func TestResolve_CallByUnambiguousMethodName(t *testing.T) {
	r := newTestResolver()

	// 接收者是实例变量名，项目内仅一个同名方法时仍可解析
	service := classFacts("src/service/UserService.java", "UserService",
		&analyzer.MethodFact{Name: "save", Calls: []*analyzer.CallFact{
			{Receiver: "userDao", MethodName: "insert"},
		}})
	dao := classFacts("src/dao/UserDao.java", "UserDao",
		&analyzer.MethodFact{Name: "insert"})

	g := r.Resolve([]*analyzer.FileFacts{service, dao}, nil)

	calls := findEdges(g, model.RelTypeCalls)
	require.Len(t, calls, 1)
	assert.Equal(t, "UserDao.insert", calls[0].Dst.Name)
}

func TestResolve_AmbiguousCallSkipped(t *testing.T) {
	r := newTestResolver()

	service := classFacts("src/service/UserService.java", "UserService",
		&analyzer.MethodFact{Name: "save", Calls: []*analyzer.CallFact{
			{Receiver: "dao", MethodName: "insert"},
		}})
	userDao := classFacts("src/dao/UserDao.java", "UserDao",
		&analyzer.MethodFact{Name: "insert"})
	orderDao := classFacts("src/dao/OrderDao.java", "OrderDao",
		&analyzer.MethodFact{Name: "insert"})

	g := r.Resolve([]*analyzer.FileFacts{service, userDao, orderDao}, nil)
	assert.Empty(t, findEdges(g, model.RelTypeCalls))
}

func TestResolve_SelfCallSkipped(t *testing.T) {
	r := newTestResolver()

	facts := classFacts("src/service/UserService.java", "UserService",
		&analyzer.MethodFact{Name: "save", Calls: []*analyzer.CallFact{
			{Receiver: "UserService", MethodName: "save"},
		}})

	g := r.Resolve([]*analyzer.FileFacts{facts}, nil)
	assert.Empty(t, findEdges(g, model.RelTypeCalls))
}

func TestResolve_ConditionalCall(t *testing.T) {
	r := newTestResolver()

	service := classFacts("src/service/UserService.java", "UserService",
		&analyzer.MethodFact{Name: "save", Calls: []*analyzer.CallFact{
			{Receiver: "UserDao", MethodName: "insert", IsConditional: true, Condition: "force"},
		}})
	dao := classFacts("src/dao/UserDao.java", "UserDao",
		&analyzer.MethodFact{Name: "insert"})

	g := r.Resolve([]*analyzer.FileFacts{service, dao}, nil)

	calls := findEdges(g, model.RelTypeCalls)
	require.Len(t, calls, 1)
	assert.True(t, calls[0].IsConditional)
	assert.Equal(t, "force", calls[0].Condition)
	assert.Equal(t, 0.8, calls[0].Confidence)
}

func TestResolve_Extends(t *testing.T) {
	r := newTestResolver()

	base := classFacts("src/dao/BaseDao.java", "BaseDao")
	sub := classFacts("src/dao/UserDao.java", "UserDao")
	sub.Classes[0].Superclass = "com.example.dao.BaseDao"
	orphan := classFacts("src/dao/LogDao.java", "LogDao")
	orphan.Classes[0].Superclass = "AbstractExternalDao"

	g := r.Resolve([]*analyzer.FileFacts{base, sub, orphan}, nil)

	extends := findEdges(g, model.RelTypeExtends)
	require.Len(t, extends, 1)
	assert.Equal(t, "UserDao", extends[0].Src.Name)
	assert.Equal(t, "BaseDao", extends[0].Dst.Name)

	subKey := ComponentKey{FilePath: "src/dao/UserDao.java", Name: "UserDao"}
	assert.Equal(t, ComponentKey{FilePath: "src/dao/BaseDao.java", Name: "BaseDao"}, g.ClassParents[subKey])
}

func TestResolve_CrossFileTargetFromKnownComponents(t *testing.T) {
	r := newTestResolver()

	// 未变更文件的组件来自既有视图，调用仍可跨文件落边
	service := classFacts("src/service/UserService.java", "UserService",
		&analyzer.MethodFact{Name: "save", Calls: []*analyzer.CallFact{
			{Receiver: "UserDao", MethodName: "insert"},
		}})
	known := []KnownComponent{
		{FilePath: "src/dao/UserDao.java", Name: "UserDao", Kind: model.ComponentKindClass},
		{FilePath: "src/dao/UserDao.java", Name: "UserDao.insert", Kind: model.ComponentKindMethod},
	}

	g := r.Resolve([]*analyzer.FileFacts{service}, known)

	calls := findEdges(g, model.RelTypeCalls)
	require.Len(t, calls, 1)
	assert.Equal(t, ComponentKey{FilePath: "src/dao/UserDao.java", Name: "UserDao.insert"}, calls[0].Dst)
}

func TestResolve_TableUsesAndJoins(t *testing.T) {
	r := newTestResolver()

	statement := &sqltext.Statement{
		DML:        model.DMLKindSelect,
		Confidence: 0.8,
		Tables: []*sqltext.TableRef{
			{Name: "users", Confidence: 1.0, Columns: []string{"id", "name"}},
			{Name: "orders", Confidence: 1.0},
			{Name: "order_items", IsConditional: true, Condition: "includeItems", Confidence: 0.8},
		},
	}
	facts := classFacts("src/dao/OrderDao.java", "OrderDao",
		&analyzer.MethodFact{Name: "listOrders", SqlFacts: []*analyzer.SqlFact{{Statement: statement, StartLine: 8}}})

	g := r.Resolve([]*analyzer.FileFacts{facts}, nil)

	require.Len(t, g.TableUses, 3)
	assert.Equal(t, "OrderDao.listOrders", g.TableUses[0].Src.Name)
	assert.Equal(t, []string{"id", "name"}, g.TableUses[0].Columns)
	assert.Equal(t, model.DMLKindSelect, g.TableUses[0].DML)

	// 三表两两成对
	require.Len(t, g.Joins, 3)
	for _, join := range g.Joins {
		if join.LeftName == "users" && join.RightName == "orders" {
			assert.Equal(t, 1.0, join.Confidence)
		}
		if join.RightName == "order_items" {
			assert.Equal(t, 0.8, join.Confidence)
			assert.True(t, join.IsConditional)
		}
	}
}

func TestResolve_SqlUnitComponents(t *testing.T) {
	r := newTestResolver()

	statement := &sqltext.Statement{
		DML:        model.DMLKindSelect,
		Confidence: 1.0,
		Tables:     []*sqltext.TableRef{{Name: "orders", Confidence: 1.0}},
	}
	facts := &analyzer.FileFacts{
		FileName: "OrderMapper.xml",
		FilePath: "src/resources/OrderMapper.xml",
		Kind:     model.FileKindMappingDescriptor,
		SqlUnits: []*analyzer.SqlUnitFact{
			{ID: "selectOrders", Namespace: "com.example.dao.OrderMapper", StartLine: 3, Statement: statement},
		},
	}

	g := r.Resolve([]*analyzer.FileFacts{facts}, nil)

	require.Len(t, g.Components, 1)
	assert.Equal(t, "com.example.dao.OrderMapper.selectOrders", g.Components[0].Name)
	assert.Equal(t, model.ComponentKindSqlUnit, g.Components[0].Kind)

	require.Len(t, g.TableUses, 1)
	assert.Equal(t, "orders", g.TableUses[0].TableName)
}

func TestResolve_TemplateUsedTypes(t *testing.T) {
	r := newTestResolver()

	service := classFacts("src/service/UserService.java", "UserService")
	template := &analyzer.FileFacts{
		FileName: "user.jsp",
		FilePath: "web/user.jsp",
		Kind:     model.FileKindTemplate,
		Fragments: []*analyzer.FragmentFact{
			{Name: "scriptlet:1", StartLine: 2, EndLine: 6, UsedTypes: []string{"com.example.service.UserService"}},
		},
	}

	g := r.Resolve([]*analyzer.FileFacts{service, template}, nil)

	calls := findEdges(g, model.RelTypeCalls)
	require.Len(t, calls, 1)
	assert.Equal(t, "scriptlet:1", calls[0].Src.Name)
	assert.Equal(t, "UserService", calls[0].Dst.Name)
}

func TestResolve_LayerAssignment(t *testing.T) {
	r := newTestResolver()

	service := classFacts("src/service/UserService.java", "UserService")
	dao := classFacts("src/dao/UserDao.java", "UserDao")

	g := r.Resolve([]*analyzer.FileFacts{service, dao}, nil)

	layers := make(map[string]string)
	for _, node := range g.Components {
		layers[node.Name] = node.Layer
	}
	assert.Equal(t, "service", layers["UserService"])
	assert.Equal(t, "repository", layers["UserDao"])
}
