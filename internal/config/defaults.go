package config

import "time"

// Enumerated setting values.
const (
	EarlyStopForce    = "force"
	EarlyStopGenerate = "generate"

	LoaderCSV    = "csv"
	LoaderDuckDB = "duckdb"

	ProviderOllama   = "ollama"
	ProviderScripted = "scripted"
)

// Default configuration values.
const (
	DefaultMaxIterations       = 6
	DefaultTimeout             = 90 * time.Second
	DefaultMaxQueryLength      = 500
	DefaultEvalTimeout         = 10 * time.Second
	DefaultMaxSteps            = 5_000_000
	DefaultMaxObservationChars = 4000
	DefaultDataDir             = "data"
	DefaultDataset             = "processed_data"
	DefaultMaxRowsDisplay      = 10
	DefaultMaxMessages         = 20
	DefaultIdleTTL             = 2 * time.Hour
	DefaultOllamaURL           = "http://localhost:11434"
	DefaultModel               = "mistral"
	DefaultTemperature         = 0.1
	DefaultLLMTimeout          = 60 * time.Second
	DefaultMaxSQLLength        = 300
	DefaultHost                = "0.0.0.0"
	DefaultPort                = 5500
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultLogMaxSizeMB        = 10
	DefaultLogMaxBackups       = 5
)

// Flat returns the scalar defaults keyed by their dotted koanf path. Layered
// loaders use it as the lowest-priority source so that boolean defaults of
// true survive explicit "false" overrides.
func Flat() map[string]any {
	return map[string]any{
		"assistant.max_iterations":     DefaultMaxIterations,
		"assistant.timeout":            DefaultTimeout.String(),
		"assistant.max_query_length":   DefaultMaxQueryLength,
		"assistant.early_stopping":     EarlyStopForce,
		"limits.eval_timeout":          DefaultEvalTimeout.String(),
		"limits.max_steps":             DefaultMaxSteps,
		"limits.max_observation_chars": DefaultMaxObservationChars,
		"data.dir":                     DefaultDataDir,
		"data.loader":                  LoaderCSV,
		"data.cache":                   true,
		"data.watch":                   true,
		"data.max_rows_display":        DefaultMaxRowsDisplay,
		"conversation.max_messages":    DefaultMaxMessages,
		"conversation.idle_ttl":        DefaultIdleTTL.String(),
		"llm.provider":                 ProviderOllama,
		"llm.url":                      DefaultOllamaURL,
		"llm.model":                    DefaultModel,
		"llm.temperature":              DefaultTemperature,
		"llm.timeout":                  DefaultLLMTimeout.String(),
		"tools.sql":                    false,
		"tools.max_sql_length":         DefaultMaxSQLLength,
		"server.host":                  DefaultHost,
		"server.port":                  DefaultPort,
		"server.secure_cookies":        false,
		"log.level":                    DefaultLogLevel,
		"log.format":                   DefaultLogFormat,
		"log.max_size_mb":              DefaultLogMaxSizeMB,
		"log.max_backups":              DefaultLogMaxBackups,
	}
}

// Defaults returns a fully populated Settings value.
func Defaults() *Settings {
	s := &Settings{
		Data:  DataConfig{Cache: true, Watch: true},
		Tools: ToolsConfig{},
	}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills zero-valued settings with defaults.
func (s *Settings) ApplyDefaults() {
	if s == nil {
		return
	}
	a := &s.Assistant
	if a.MaxIterations == 0 {
		a.MaxIterations = DefaultMaxIterations
	}
	if a.Timeout == 0 {
		a.Timeout = DefaultTimeout
	}
	if a.MaxQueryLength == 0 {
		a.MaxQueryLength = DefaultMaxQueryLength
	}
	if a.EarlyStopping == "" {
		a.EarlyStopping = EarlyStopForce
	}

	l := &s.Limits
	if l.EvalTimeout == 0 {
		l.EvalTimeout = DefaultEvalTimeout
	}
	if l.MaxSteps == 0 {
		l.MaxSteps = DefaultMaxSteps
	}
	if l.MaxObservationChars == 0 {
		l.MaxObservationChars = DefaultMaxObservationChars
	}

	if s.Data.Dir == "" {
		s.Data.Dir = DefaultDataDir
	}
	if s.Data.Loader == "" {
		s.Data.Loader = LoaderCSV
	}
	if s.Data.MaxRowsDisplay == 0 {
		s.Data.MaxRowsDisplay = DefaultMaxRowsDisplay
	}
	if len(s.Datasets) == 0 {
		s.Datasets = DefaultDatasets()
	}

	b := &s.Brand
	if b.Name == "" {
		b.Name = "BrightCom Loans"
	}
	if b.Primary == "" {
		b.Primary = "#F25D27"
	}
	if b.Success == "" {
		b.Success = "#82BF45"
	}
	if b.Dark == "" {
		b.Dark = "#19593B"
	}
	if b.Currency == "" {
		b.Currency = "KES"
	}

	if s.Conversation.MaxMessages == 0 {
		s.Conversation.MaxMessages = DefaultMaxMessages
	}
	if s.Conversation.IdleTTL == 0 {
		s.Conversation.IdleTTL = DefaultIdleTTL
	}

	m := &s.LLM
	if m.Provider == "" {
		m.Provider = ProviderOllama
	}
	if m.URL == "" {
		m.URL = DefaultOllamaURL
	}
	if m.Model == "" {
		m.Model = DefaultModel
	}
	if m.Temperature == 0 {
		m.Temperature = DefaultTemperature
	}
	if m.Timeout == 0 {
		m.Timeout = DefaultLLMTimeout
	}

	if s.Tools.MaxSQLLength == 0 {
		s.Tools.MaxSQLLength = DefaultMaxSQLLength
	}

	if s.Server.Host == "" {
		s.Server.Host = DefaultHost
	}
	if s.Server.Port == 0 {
		s.Server.Port = DefaultPort
	}

	lg := &s.Log
	if lg.Level == "" {
		lg.Level = DefaultLogLevel
	}
	if lg.Format == "" {
		lg.Format = DefaultLogFormat
	}
	if lg.MaxSizeMB == 0 {
		lg.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if lg.MaxBackups == 0 {
		lg.MaxBackups = DefaultLogMaxBackups
	}

	u := &s.UI
	if u.Title == "" {
		u.Title = "Brightcom Loan Assistant"
	}
	if u.Description == "" {
		u.Description = "Your intelligent financial data companion"
	}
	if u.Welcome == "" {
		u.Welcome = "Hello! I'm here to help you with loan and financial data questions. What would you like to know about your loan portfolio?"
	}
	if len(u.Suggestions) == 0 {
		u.Suggestions = DefaultSuggestions()
	}
}

// DefaultSuggestions returns the canned starter questions.
func DefaultSuggestions() []Suggestion {
	return []Suggestion{
		{Text: "Active Loans", Query: "How many active loans do we have?"},
		{Text: "High Arrears", Query: "Which clients have the highest arrears?"},
		{Text: "Portfolio Value", Query: "What is our total loan portfolio value?"},
		{Text: "Multiple Loans", Query: "Show me clients with multiple loans"},
		{Text: "Payment Trends", Query: "Show me payment trends"},
		{Text: "Loan Managers", Query: "Which loan managers have the most clients?"},
		{Text: "Loan Products", Query: "What are our most popular loan products?"},
	}
}

// DefaultDatasets returns the built-in loan portfolio catalog.
func DefaultDatasets() []DatasetConfig {
	return []DatasetConfig{
		{
			Name:        "processed_data",
			File:        "processed_data.csv",
			Description: "Denormalized snapshot with one row per loan, joined with client details and repayment expectations as of today.",
			JoinKeys:    []string{"Loan_No", "Client_Code"},
			Columns: []ColumnConfig{
				{Name: "Managed_By", Type: "categorical", Description: "Name of the loan manager responsible for the loan"},
				{Name: "Loan_No", Type: "identifier", Description: "Unique loan identifier"},
				{Name: "Client_Code", Type: "identifier", Description: "Unique client identifier"},
				{Name: "Client_Name", Type: "text", Description: "Client full name"},
				{Name: "Total_Paid", Type: "currency", Description: "Total amount paid by the client"},
				{Name: "Total_Charged", Type: "currency", Description: "Total amount charged to the client"},
				{Name: "Status", Type: "categorical", Description: "Loan status (Active, Closed, ...)"},
				{Name: "Arrears", Type: "currency", Description: "Outstanding arrears on the loan"},
				{Name: "Loan_Product_Type", Type: "categorical", Description: "Product: BIASHARA4W, BIASHARA6W, INUKA6WKS, INUKA4WKS, INUKA8WKS"},
				{Name: "Issued_Date", Type: "date", Description: "Date the loan was issued"},
				{Name: "Amount_Disbursed", Type: "currency", Description: "Amount disbursed to the client"},
				{Name: "Installments", Type: "count", Description: "Number of installments"},
				{Name: "Days_Since_Issued", Type: "count", Description: "Days since the loan was issued"},
				{Name: "Is_Installment_Day", Type: "flag", Description: "Whether today is an installment day"},
				{Name: "Weeks_Passed", Type: "count", Description: "Weeks since the loan was issued"},
				{Name: "Installments_Expected", Type: "count", Description: "Installments expected to be completed by today"},
				{Name: "Installment_Amount", Type: "currency", Description: "Amount due per installment"},
				{Name: "Expected_Paid", Type: "currency", Description: "Amount expected to be paid by today"},
				{Name: "Expected_Before_Today", Type: "currency", Description: "Amount expected to be paid before today"},
				{Name: "Due_Today", Type: "currency", Description: "Amount due today when today is an installment day (use Due_Today > 0)"},
				{Name: "Mobile_Phone_No", Type: "text", Description: "Client mobile phone number"},
				{Name: "Client_Loan_Count", Type: "count", Description: "Number of loans the client has"},
				{Name: "Client_Type", Type: "categorical", Description: "New or Repeat client"},
			},
		},
		{
			Name:        "loans",
			File:        "loans.csv",
			Description: "Loan master table with one row per loan.",
			JoinKeys:    []string{"Loan_No", "Client_Code"},
			Columns: []ColumnConfig{
				{Name: "Loan_No", Type: "identifier", Description: "Unique loan identifier"},
				{Name: "Loan_Product_Type", Type: "categorical", Description: "Loan product"},
				{Name: "Client_Code", Type: "identifier", Description: "Client identifier"},
				{Name: "Issued_Date", Type: "date", Description: "Issue date"},
				{Name: "Approved_Amount", Type: "currency", Description: "Approved principal"},
				{Name: "Manager", Type: "categorical", Description: "Loan manager"},
				{Name: "Recruiter", Type: "categorical", Description: "Staff member who recruited the client"},
				{Name: "Installments", Type: "count", Description: "Number of installments"},
				{Name: "Expected_Date_of_Completion", Type: "date", Description: "Scheduled completion date"},
			},
		},
		{
			Name:        "ledger",
			File:        "ledger.csv",
			Description: "Repayment transactions with one row per posting.",
			JoinKeys:    []string{"Loan_No"},
			Columns: []ColumnConfig{
				{Name: "Posting_Date", Type: "date", Description: "Date the payment was posted"},
				{Name: "Loan_No", Type: "identifier", Description: "Loan identifier"},
				{Name: "Loan_Product_Type", Type: "categorical", Description: "Loan product"},
				{Name: "Interest_Paid", Type: "currency", Description: "Interest component of the payment"},
				{Name: "Principle_Paid", Type: "currency", Description: "Principal component of the payment"},
				{Name: "Total_Paid", Type: "currency", Description: "Total payment amount"},
			},
		},
		{
			Name:        "clients",
			File:        "clients.csv",
			Description: "Client demographics with one row per client.",
			JoinKeys:    []string{"Client_Code"},
			Columns: []ColumnConfig{
				{Name: "Client_Code", Type: "identifier", Description: "Unique client identifier"},
				{Name: "Name", Type: "text", Description: "Client name"},
				{Name: "Gender", Type: "categorical", Description: "Client gender"},
				{Name: "Age", Type: "count", Description: "Client age in years"},
			},
		},
	}
}
