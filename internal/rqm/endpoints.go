package rqm

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
)

const servicePrefix = "/qm/service/"

const (
	projectAreasService = "com.ibm.team.repository.service.internal.webuiInitializer.IWebUIInitializerRestService/initializationData"
	streamsService      = "com.ibm.rqm.configmanagement.service.rest.IConfigurationManagementRestService/pagedSearchResult"
	testPlanService     = "com.ibm.rqm.planning.common.service.rest.ITestPlanRestService/pagedSearchResult"
	testCaseService     = "com.ibm.rqm.planning.common.service.rest.ITestCaseRestService/pagedSearchResult"
	testScriptService   = "com.ibm.rqm.execution.common.service.rest.IExecutionScriptSearchRestService/pagedSearchResult"
	testSuiteService    = "com.ibm.rqm.planning.common.service.rest.ITestSuiteRestService/pagedSearchResult"
	tcerService         = "com.ibm.rqm.execution.common.service.rest.ITestcaseExecutionRecordRestService/pagedSearchResult"

	// authPath is probed to validate credentials.
	authPath = "/qm"
	// oslcQueryPath is the OSLC QM query capability of a project area.
	oslcQueryPath = "/qm/oslc_qm/contexts/%s/resources/%s"
)

const (
	formContentType = "application/x-www-form-urlencoded; charset=utf-8"

	streamsPageSize = 100
	countPageSize   = 500
	formPage        = 1
	formPageSize    = 50
)

// endpoint describes how one artifact count is requested and read.
type endpoint struct {
	method  string
	service string
	accept  string
	// countFields are tried in order on the decoded payload.
	countFields []string
	// params builds the query string (GET) or the form body (POST).
	params func(areaID, streamID string) url.Values
}

var countEndpoints = map[ArtifactKind]endpoint{
	TestPlan: {
		method:      http.MethodGet,
		service:     testPlanService,
		countFields: []string{"totalSize", "resultSetSize"},
		params: func(areaID, streamID string) url.Values {
			return url.Values{
				"processArea":         {areaID},
				"page":                {"0"},
				"pageSize":            {strconv.Itoa(countPageSize)},
				"oslc_config.context": {streamID},
			}
		},
	},
	TestCase: {
		method:      http.MethodPost,
		service:     testCaseService,
		accept:      "application/json",
		countFields: []string{"totalSize"},
		params:      searchForm,
	},
	TestScript: {
		method:      http.MethodGet,
		service:     testScriptService,
		countFields: []string{"totalSize"},
		params:      scopedQuery,
	},
	TestSuite: {
		method:      http.MethodGet,
		service:     testSuiteService,
		countFields: []string{"totalSize"},
		params:      scopedQuery,
	},
	TestCaseExecutionRecord: {
		method:      http.MethodPost,
		service:     tcerService,
		accept:      "text/json",
		countFields: []string{"totalSize"},
		params:      searchForm,
	},
}

// oslcResourceTypes maps kinds to their OSLC QM query resource type.
var oslcResourceTypes = map[ArtifactKind]string{
	TestCase: "com.ibm.rqm.planning.VersionedTestCase",
}

func endpointFor(kind ArtifactKind) (endpoint, error) {
	ep, ok := countEndpoints[kind]
	if !ok {
		return endpoint{}, errors.Errorf("no count endpoint for %s", kind)
	}
	return ep, nil
}

func scopedQuery(areaID, streamID string) url.Values {
	return url.Values{
		"oslc_config.context": {streamID},
		"pageSize":            {strconv.Itoa(countPageSize)},
		"processArea":         {areaID},
	}
}

func streamsQuery(areaID string) url.Values {
	return url.Values{
		"pageSize":    {strconv.Itoa(streamsPageSize)},
		"page":        {"0"},
		"projectArea": {areaID},
	}
}

// searchForm is the fixed body of the paged search services. Only the
// project area and the configuration context vary.
func searchForm(areaID, streamID string) url.Values {
	return url.Values{
		"includeCustomAttributes":   {"true"},
		"includeArchived":           {"false"},
		"processArea":               {areaID},
		"traceabilityViewType":      {"true"},
		"resolveParentTestPlans":    {"false"},
		"resolveScripts":            {"false"},
		"resolveParentTestSuites":   {"true"},
		"resolveCategories":         {"true"},
		"resolveCustomAttributes":   {"false"},
		"resolveLinkedFiles":        {"false"},
		"resolveDevItem":            {"false"},
		"resolveCopiedArtifactInfo": {"false"},
		"page":                      {strconv.Itoa(formPage)},
		"pageSize":                  {strconv.Itoa(formPageSize)},
		"resultLimit":               {"-1"},
		"oslc_config.context":       {streamID},
		"isWebUI":                   {"true"},
	}
}
