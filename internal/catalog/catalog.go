// Package catalog provides the built-in operator catalog.
//
// Most operators are Go structs registered with an operator.Registry; their
// module paths follow the Airflow layout so descriptors match what workflow
// editors expect. Operators that only exist as declarations are built as
// operator.StaticClass tables.
package catalog

import (
	"fmt"
	"sync"

	"github.com/windmill-io/windmill/internal/operator"
)

// Module paths of the built-in operators.
const (
	ModuleModels       = "airflow.models"
	ModuleBash         = "airflow.operators.bash_operator"
	ModulePython       = "airflow.operators.python_operator"
	ModuleSensors      = "airflow.sensors.base_sensor_operator"
	ModuleS3KeySensor  = "airflow.sensors.s3_key_sensor"
	ModuleEmail        = "airflow.operators.email_operator"
	ModuleDummy        = "airflow.operators.dummy_operator"
	ModuleHTTPOperator = "airflow.operators.http_operator"
)

// Catalog is a fixed set of operator classes with a common root.
type Catalog struct {
	root    operator.Class
	classes []operator.Class
}

// New builds a catalog from a root and its classes.
func New(root operator.Class, classes ...operator.Class) *Catalog {
	return &Catalog{root: root, classes: append([]operator.Class(nil), classes...)}
}

// Root returns the root class.
func (c *Catalog) Root() operator.Class {
	return c.root
}

// Classes returns every class, including the root.
func (c *Catalog) Classes() ([]operator.Class, error) {
	out := make([]operator.Class, 0, len(c.classes)+1)
	out = append(out, c.root)
	out = append(out, c.classes...)
	return out, nil
}

type registration struct {
	value  any
	module string
	doc    string
}

var builtins = []registration{
	{BashOperator{}, ModuleBash, bashOperatorDoc},
	{PythonOperator{}, ModulePython, pythonOperatorDoc},
	{PythonVirtualenvOperator{}, ModulePython, pythonVirtualenvOperatorDoc},
	{BaseSensorOperator{}, ModuleSensors, baseSensorOperatorDoc},
	{S3KeySensor{}, ModuleS3KeySensor, s3KeySensorDoc},
	{EmailOperator{}, ModuleEmail, emailOperatorDoc},
	{DummyOperator{}, ModuleDummy, dummyOperatorDoc},
}

// Register registers the built-in operators with reg and returns the catalog.
func Register(reg *operator.Registry) (*Catalog, error) {
	root, err := reg.Register(BaseOperator{},
		operator.WithModule(ModuleModels),
		operator.WithDoc(baseOperatorDoc))
	if err != nil {
		return nil, fmt.Errorf("failed to register BaseOperator: %w", err)
	}

	classes := make([]operator.Class, 0, len(builtins)+1)
	for _, b := range builtins {
		cls, err := reg.Register(b.value, operator.WithModule(b.module), operator.WithDoc(b.doc))
		if err != nil {
			return nil, fmt.Errorf("failed to register %T: %w", b.value, err)
		}
		classes = append(classes, cls)
	}
	classes = append(classes, httpOperator(root))

	return New(root, classes...), nil
}

// httpOperator is declared as a table: its implementation lives outside Go.
func httpOperator(root operator.Class) operator.Class {
	return &operator.StaticClass{
		TypeName:   "SimpleHttpOperator",
		ModulePath: ModuleHTTPOperator,
		Documentation: `Calls an endpoint on an HTTP system to execute an action.

    :param http_conn_id: The connection to run the operator against
    :type http_conn_id: str
    :param endpoint: The relative part of the full url. (templated)
    :type endpoint: str
    :param method: The HTTP method to use, default = "POST"
    :type method: str
    :param data: The data to pass. POST-data in POST/PUT and params
        in the URL for a GET request. (templated)
    :type data: For POST/PUT, depends on the content-type parameter,
        for GET a dictionary of key/value string pairs
    :param headers: The HTTP headers to be added to the GET request
    :type headers: a dictionary of string key/value pairs
    :param log_response: Log the response
    :type log_response: bool
`,
		Params: []operator.Parameter{
			{Name: "self", Kind: operator.Receiver},
			operator.Required("endpoint"),
			operator.Optional("method", "POST"),
			operator.Optional("data", nil),
			operator.Optional("headers", nil),
			operator.Optional("http_conn_id", "http_default"),
			operator.Optional("log_response", false),
			{Name: "args", Kind: operator.Variadic},
			{Name: "kwargs", Kind: operator.Keywords},
		},
		Parent: root,
	}
}

var (
	defaultCatalog     *Catalog
	defaultCatalogErr  error
	defaultCatalogOnce sync.Once
)

// Default returns the built-in catalog registered with the process-wide
// operator registry.
func Default() (*Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = Register(operator.DefaultRegistry())
	})
	return defaultCatalog, defaultCatalogErr
}
