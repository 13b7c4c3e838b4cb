package catalog

import "time"

// BaseOperator is the abstract root of every operator.
type BaseOperator struct {
	TaskID         string         `op:"task_id"`
	Owner          string         `op:"owner" default:"airflow"`
	Email          []string       `op:"email" default:"null"`
	Retries        int            `op:"retries" default:"0"`
	RetryDelay     time.Duration  `op:"retry_delay" default:"5m"`
	DependsOnPast  bool           `op:"depends_on_past" default:"false"`
	Queue          string         `op:"queue" default:"default"`
	Pool           *string        `op:"pool" default:"null"`
	PriorityWeight int            `op:"priority_weight" default:"1"`
	TriggerRule    string         `op:"trigger_rule" default:"all_success"`
	Params         map[string]any `op:"params" default:"null"`

	Args   []any          `op:"args,variadic"`
	Kwargs map[string]any `op:"kwargs,kwargs"`
}

const baseOperatorDoc = `Abstract base class for all operators.

    Operators derived from this class perform or trigger a task
    synchronously and are the building blocks of a workflow.

    :param task_id: a unique, meaningful id for the task
    :type task_id: str
    :param owner: the owner of the task, using the unix username is recommended
    :type owner: str
    :param email: the addresses to notify when the task fails
    :param retries: the number of retries that should be performed before
        failing the task
    :type retries: int
    :param retry_delay: delay between retries
    :type retry_delay: timedelta
    :param depends_on_past: when set to true, task instances will run
        sequentially while relying on the previous task's schedule to
        succeed
    :type depends_on_past: bool
    :param queue: which queue to target when running this job
    :param pool: the slot pool this task should run in, slot pools are a
        way to limit concurrency for certain tasks
    :param priority_weight: priority weight of this task against other tasks
    :type priority_weight: int
    :param trigger_rule: defines the rule by which dependencies are applied
        for the task to get triggered
    :param params: a dictionary of DAG level parameters made accessible in
        templates
    :type params: dict
`

// BashOperator executes a Bash script, command or set of commands.
type BashOperator struct {
	BaseOperator

	BashCommand    string            `op:"bash_command"`
	XComPush       bool              `op:"xcom_push" default:"false"`
	Env            map[string]string `op:"env" default:"null"`
	OutputEncoding string            `op:"output_encoding" default:"utf-8"`
}

const bashOperatorDoc = `Execute a Bash script, command or set of commands.

    :param bash_command: The command, set of commands or reference to a
        bash script (must be '.sh') to be executed. (templated)
`

// PythonOperator executes a Python callable.
type PythonOperator struct {
	BaseOperator

	PythonCallable string         `op:"python_callable"`
	OpArgs         []any          `op:"op_args" default:"null"`
	OpKwargs       map[string]any `op:"op_kwargs" default:"null"`
	ProvideContext bool           `op:"provide_context" default:"false"`
	TemplatesDict  map[string]any `op:"templates_dict" default:"null"`
}

const pythonOperatorDoc = `Executes a Python callable.

    :param python_callable: A reference to an object that is callable
    :type python_callable: python callable
    :param op_kwargs: a dictionary of keyword arguments that will get unpacked
        in your function
    :type op_kwargs: dict
    :param op_args: a list of positional arguments that will get unpacked when
        calling your callable
    :type op_args: list
    :param provide_context: if set to true, the execution context is passed
        to the callable as keyword arguments
    :type provide_context: bool
    :param templates_dict: a dictionary where the values are templates that
        will get templated before the callable runs
    :type templates_dict: dict of str
`

// PythonVirtualenvOperator runs a Python callable inside a new virtualenv.
type PythonVirtualenvOperator struct {
	PythonOperator

	Requirements       []string `op:"requirements" default:"null"`
	PythonVersion      *string  `op:"python_version" default:"null"`
	UseDill            bool     `op:"use_dill" default:"false"`
	SystemSitePackages bool     `op:"system_site_packages" default:"true"`
	// Redeclared with a narrower default.
	OpArgs []any `op:"op_args" default:"[]"`
}

const pythonVirtualenvOperatorDoc = `Allows one to run a function in a virtualenv that is created and destroyed
    automatically.

    :param requirements: A list of requirements as specified in a pip install command
    :type requirements: list[str]
    :param python_version: The Python version to run the virtualenv with
    :type python_version: str
    :param use_dill: Whether to use dill to serialize the args and result
    :type use_dill: bool
    :param system_site_packages: Whether to include system_site_packages in
        your virtualenv
    :type system_site_packages: bool
    :param op_args: A list of positional arguments to pass to python_callable
    :type op_args: list
`

// BaseSensorOperator keeps executing at an interval until a criterion is met.
type BaseSensorOperator struct {
	BaseOperator

	PokeInterval float64 `op:"poke_interval" default:"60"`
	Timeout      float64 `op:"timeout" default:"604800"`
	SoftFail     bool    `op:"soft_fail" default:"false"`
	Mode         string  `op:"mode" default:"poke"`
}

const baseSensorOperatorDoc = `Sensor operators are derived from this class and inherit these attributes.

    Sensor operators keep executing at a time interval and succeed when
    a criteria is met and fail if and when they time out.

    :param soft_fail: Set to true to mark the task as SKIPPED on failure
    :type soft_fail: bool
    :param poke_interval: Time in seconds that the job should wait in
        between each tries
    :type poke_interval: int
    :param timeout: Time, in seconds before the task times out and fails.
    :type timeout: int
    :param mode: How the sensor operates. Options are: { poke | reschedule }
    :type mode: str
`

// S3KeySensor waits for a key in an S3 bucket.
type S3KeySensor struct {
	BaseSensorOperator

	BucketKey  string  `op:"bucket_key"`
	BucketName *string `op:"bucket_name" default:"null"`
	Wildcard   bool    `op:"wildcard_match" default:"false"`
	AWSConnID  string  `op:"aws_conn_id" default:"aws_default"`
	Verify     *bool   `op:"verify" default:"null"`
}

const s3KeySensorDoc = `Waits for a key (a file-like instance on S3) to be present in a S3 bucket.
    S3 being a key/value it does not support folders. The path is just a key
    a resource.

    :param bucket_key: The key being waited on. Supports full s3:// style url
        or relative path from root level.
    :type bucket_key: str
    :param bucket_name: Name of the S3 bucket
    :type bucket_name: str
    :param wildcard_match: whether the bucket_key should be interpreted as a
        Unix wildcard pattern
    :type wildcard_match: bool
    :param aws_conn_id: a reference to the s3 connection
    :type aws_conn_id: str
    :param verify: Whether or not to verify SSL certificates for S3 connection.
    :type verify: bool or str
`

// EmailOperator sends an email.
type EmailOperator struct {
	BaseOperator

	To          []string `op:"to"`
	Subject     string   `op:"subject"`
	HTMLContent string   `op:"html_content"`
	Files       []string `op:"files" default:"null"`
	CC          []string `op:"cc" default:"null"`
	BCC         []string `op:"bcc" default:"null"`
	MimeSubtype string   `op:"mime_subtype" default:"mixed"`
	MimeCharset string   `op:"mime_charset" default:"us_ascii"`
}

const emailOperatorDoc = `Sends an email.

    :param to: list of emails to send the email to. (templated)
    :type to: list or string (comma or semicolon delimited)
    :param subject: subject line for the email. (templated)
    :type subject: str
    :param html_content: content of the email, html markup
        is allowed. (templated)
    :type html_content: str
    :param files: file names to attach in email
    :type files: list
    :param cc: list of recipients to be added in CC field
    :type cc: list or string (comma or semicolon delimited)
    :param bcc: list of recipients to be added in BCC field
    :type bcc: list or string (comma or semicolon delimited)
    :param mime_subtype: MIME sub content type
    :type mime_subtype: str
    :param mime_charset: character set parameter added to the Content-Type
        header.
    :type mime_charset: str
`

// DummyOperator does literally nothing. It can be used to group tasks.
type DummyOperator struct {
	BaseOperator
}

const dummyOperatorDoc = `Operator that does literally nothing. It can be used to group tasks in a
    DAG.
`
