package tensorflow

import (
	"compress/gzip"
	"io"
	"io/ioutil"
	"os"
	"strings"

	tf "github.com/kiteco/tensorflow/tensorflow/go"
	"github.com/signetml/signet/signet-golib/errors"
	"github.com/signetml/signet/signet-golib/lazy"
)

// RunCallback is a function that can be called whenever Run is called, with the inputs and results of the model
type RunCallback func(feeds map[string]interface{}, fetches []string, result map[string]interface{}, err error)

// Model wraps a frozen Tensorflow graph and a session to evaluate it
type Model struct {
	*lazy.Loader
	session *tf.Session
	graph   *tf.Graph

	// RunCallback, if set, is called whenever Run is called
	RunCallback RunCallback
}

// NewModel lazily loads a Tensorflow model from the given local path. The model must be
// serialized as a GraphDef proto, frozen to replace variables with constants (the format
// produced by Tensorflow's freeze_graph utility). A .gz suffix on the path causes the
// graph to be decompressed while reading.
func NewModel(path string) (*Model, error) {
	m := &Model{}

	load := func() error {
		data, err := readGraphDef(path)
		if err != nil {
			return errors.Wrapf(err, "error reading graph definition")
		}

		graph := tf.NewGraph()
		if err := graph.Import(data, ""); err != nil {
			return errors.Wrapf(err, "error importing graph")
		}

		sess, err := tf.NewSession(graph, nil)
		if err != nil {
			graph.Delete()
			return errors.Wrapf(err, "error creating session")
		}

		m.graph = graph
		m.session = sess
		return nil
	}

	unload := func() {
		if m.session != nil {
			m.session.Close()
		}
		if m.graph != nil {
			m.graph.Delete()
		}
		m.session = nil
		m.graph = nil
	}

	m.Loader = lazy.NewLoader(load, unload)

	return m, nil
}

func readGraphDef(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}
	return ioutil.ReadAll(r)
}

// Unload the model
func (m *Model) Unload() {
	m.Loader.Unload()
}

// OpExists ...
func (m *Model) OpExists(name string) (bool, error) {
	err := m.Loader.LoadAndLock()
	if err != nil {
		return false, err
	}
	defer m.Loader.Unlock()
	for _, op := range m.graph.Operations() {
		if op.Name() == name {
			return true, nil
		}
	}
	return false, nil
}

// Run takes in a map of feed tensors, keyed by the operation names, as well as a slice of operations to fetch.
// As output, it returns a map of output operation names to the resulting output tensors.
func (m *Model) Run(feeds map[string]interface{}, fetches []string) (map[string]interface{}, error) {
	res, err := m.run(feeds, fetches)
	if m.RunCallback != nil {
		m.RunCallback(feeds, fetches, res, err)
	}
	return res, err
}

func (m *Model) run(feeds map[string]interface{}, fetches []string) (map[string]interface{}, error) {
	err := m.Loader.LoadAndLock()
	if err != nil {
		return nil, err
	}
	defer m.Loader.Unlock()

	tfFeeds := make(map[tf.Output]*tf.Tensor)

	for op, val := range feeds {
		out, err := m.tfOut(op)
		if err != nil {
			return nil, err
		}
		tensor, err := tf.NewTensor(val)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating tensor")
		}
		tfFeeds[out] = tensor
	}

	// Cleanup tensors
	defer func() {
		for _, t := range tfFeeds {
			t.Delete()
		}
	}()

	var tfFetches []tf.Output
	for _, op := range fetches {
		out, err := m.tfOut(op)
		if err != nil {
			return nil, err
		}
		tfFetches = append(tfFetches, out)
	}

	return runTF(func() ([]*tf.Tensor, error) {
		return m.session.Run(tfFeeds, tfFetches, nil)
	}, fetches)
}

func (m *Model) tfOut(opName string) (tf.Output, error) {
	op := m.graph.Operation(opName)
	if op == nil {
		return tf.Output{}, errors.Errorf("could not find op with name: %s", opName)
	}

	return tf.Output{
		Op:    op,
		Index: 0,
	}, nil
}

func runTF(run func() ([]*tf.Tensor, error), fetches []string) (map[string]interface{}, error) {
	res, err := run()
	if err != nil {
		return nil, errors.Wrapf(err, "error running model")
	}

	// Cleanup tensors
	defer func() {
		for _, t := range res {
			t.Delete()
		}
	}()

	out := make(map[string]interface{})
	for i, op := range fetches {
		out[op] = res[i].Value()
	}

	return out, nil
}
