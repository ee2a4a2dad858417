package lambdaaws

// lInput is one chunk of trip URLs handed to a single function invocation.
type lInput struct {
	JobID        string   `json:"job_id"`
	Part         int      `json:"part"`
	URLs         []string `json:"urls"`
	Force        bool     `json:"force"`
	Concurrency  int      `json:"concurrency"`
	FunctionName string   `json:"function_name"`
}

type lOutput struct {
	JobID     string `json:"job_id"`
	Part      int    `json:"part"`
	Seeded    int    `json:"seeded"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}
