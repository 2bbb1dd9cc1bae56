// Package monitoring turns a running radarctl system into a web server that
// reports its counters and allows pausing and resuming the frame tasks.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"reflect"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/radarctl/hooking"
	"github.com/sarchlab/radarctl/id"
	"github.com/sarchlab/radarctl/monitoring/web"
	"github.com/sarchlab/radarctl/pool"
	"github.com/sarchlab/radarctl/system"
)

// Monitor serves the state of a system over HTTP.
type Monitor struct {
	sys        *system.System
	components []hooking.Named
	portNumber int
	ids        id.Generator
	server     *http.Server

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		ids: id.NewGenerator(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterSystem registers the system to report, together with all its
// components.
func (m *Monitor) RegisterSystem(s *system.System) {
	m.sys = s

	m.RegisterComponent(s.Controller())

	for _, st := range s.Stages() {
		m.RegisterComponent(st)
	}

	m.RegisterComponent(s.Frames())
	m.RegisterComponent(s.Host())
	m.RegisterComponent(s.Compute())

	if s.Scheduler() != nil {
		m.RegisterComponent(s.Scheduler())
	}
}

// RegisterComponent register a component to be monitored.
func (m *Monitor) RegisterComponent(c hooking.Named) {
	m.components = append(m.components, c)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        m.ids.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler of every monitor endpoint.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	fServer := http.FileServer(web.GetAssets())
	r.HandleFunc("/api/snapshot", m.snapshot)
	r.HandleFunc("/api/pipeline", m.pipeline)
	r.HandleFunc("/api/token", m.token)
	r.HandleFunc("/api/frames", m.frames)
	r.HandleFunc("/api/frames/stop", m.stopFrames).Methods(http.MethodPost)
	r.HandleFunc("/api/frames/resume", m.resumeFrames).Methods(http.MethodPost)
	r.HandleFunc("/api/pools", m.pools)
	r.HandleFunc("/api/power", m.power)
	r.HandleFunc("/api/protocol", m.protocol)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring radarctl with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	return url
}

// Shutdown stops the web server.
func (m *Monitor) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) requireSystem(w http.ResponseWriter) bool {
	if m.sys != nil {
		return true
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	_, err := w.Write([]byte("No system registered"))
	dieOnErr(err)

	return false
}

func (m *Monitor) snapshot(w http.ResponseWriter, _ *http.Request) {
	if !m.requireSystem(w) {
		return
	}

	writeJSON(w, m.sys.Snapshot())
}

type pipelineRsp struct {
	State     string           `json:"state"`
	Mode      string           `json:"mode"`
	Modes     []string         `json:"modes"`
	Params    any              `json:"params"`
	Frames    uint64           `json:"frames"`
	Dropped   uint64           `json:"dropped"`
	Configs   uint64           `json:"configs"`
	StageTime map[string]int64 `json:"stage_time_ns"`
}

func (m *Monitor) pipeline(w http.ResponseWriter, _ *http.Request) {
	if !m.requireSystem(w) {
		return
	}

	c := m.sys.Controller()
	stats := c.Stats()
	rsp := pipelineRsp{
		State:     c.State().String(),
		Mode:      c.ActiveMode(),
		Modes:     c.Modes(),
		Params:    c.Params(),
		Frames:    stats.Frames,
		Dropped:   stats.Dropped,
		Configs:   stats.Configs,
		StageTime: make(map[string]int64),
	}

	for _, st := range m.sys.Stages() {
		rsp.StageTime[st.Name()] =
			m.sys.StageTime().TotalTime(st.Name()).Nanoseconds()
	}

	writeJSON(w, rsp)
}

func (m *Monitor) token(w http.ResponseWriter, _ *http.Request) {
	if !m.requireSystem(w) {
		return
	}

	writeJSON(w, m.sys.Token().Stats())
}

type framesRsp struct {
	Stopped bool `json:"stopped"`
	Idle    bool `json:"idle"`
	Stats   any  `json:"stats"`
}

func (m *Monitor) frames(w http.ResponseWriter, _ *http.Request) {
	if !m.requireSystem(w) {
		return
	}

	p := m.sys.Frames()
	writeJSON(w, framesRsp{
		Stopped: p.Stopped(),
		Idle:    p.Idle(),
		Stats:   p.Stats(),
	})
}

func (m *Monitor) stopFrames(w http.ResponseWriter, _ *http.Request) {
	if !m.requireSystem(w) {
		return
	}

	m.sys.Frames().Stop()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) resumeFrames(w http.ResponseWriter, _ *http.Request) {
	if !m.requireSystem(w) {
		return
	}

	m.sys.Frames().Resume()
	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) pools(w http.ResponseWriter, r *http.Request) {
	if !m.requireSystem(w) {
		return
	}

	sortMethod, limit, offset, err := m.poolsParseParams(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	writeJSON(w, sortAndSelectPools(
		m.sys.Pools().Usage(), sortMethod, limit, offset))
}

func (*Monitor) poolsParseParams(
	r *http.Request,
) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "used" && sortMethod != "percent" {
		errStr := fmt.Sprintf(
			"Invalid sort method: %s. Allowed values are `used` and `percent`",
			sortMethod)
		return "", 0, 0, errors.New(errStr)
	}

	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		limitStr = "0"
	}

	limitNumber, err := strconv.Atoi(limitStr)
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offsetStr := r.URL.Query().Get("offset")
	if offsetStr == "" {
		offsetStr = "0"
	}

	offsetNumber, err := strconv.Atoi(offsetStr)
	if err != nil {
		return sortMethod, limitNumber, 0, err
	}

	return sortMethod, limitNumber, offsetNumber, nil
}

func usagePercent(u pool.Usage) float64 {
	if u.Capacity == 0 {
		return 0
	}

	return float64(u.Used) / float64(u.Capacity)
}

// sortAndSelectPools orders the pools, fullest first, and returns a page of
// them. A limit of 0 returns every pool after offset.
func sortAndSelectPools(
	usage []pool.Usage,
	sortMethod string,
	limit, offset int,
) []pool.Usage {
	sorted := make([]pool.Usage, len(usage))
	copy(sorted, usage)

	switch sortMethod {
	case "used":
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].Used != sorted[j].Used {
				return sorted[i].Used > sorted[j].Used
			}

			return usagePercent(sorted[i]) > usagePercent(sorted[j])
		})
	case "percent":
		sort.SliceStable(sorted, func(i, j int) bool {
			pi, pj := usagePercent(sorted[i]), usagePercent(sorted[j])
			if pi != pj {
				return pi > pj
			}

			return sorted[i].Used > sorted[j].Used
		})
	default:
		panic("Invalid sort method " + sortMethod)
	}

	if offset > len(sorted) {
		offset = len(sorted)
	}

	end := len(sorted)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return sorted[offset:end]
}

func (m *Monitor) power(w http.ResponseWriter, _ *http.Request) {
	if !m.requireSystem(w) {
		return
	}

	s := m.sys.Scheduler()
	if s == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Power management is disabled"))
		dieOnErr(err)

		return
	}

	writeJSON(w, s.Stats())
}

type protocolRsp struct {
	Control any `json:"control"`
	Compute any `json:"compute"`
}

func (m *Monitor) protocol(w http.ResponseWriter, _ *http.Request) {
	if !m.requireSystem(w) {
		return
	}

	writeJSON(w, protocolRsp{
		Control: m.sys.Host().Stats(),
		Compute: m.sys.Compute().Stats(),
	})
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	_, err = m.walkFields(component, req.FieldName)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(component)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	dieOnErr(err)

	err = serializer.Serialize(w)
	dieOnErr(err)
}

type fieldFormatError struct {
	field string
}

func (e fieldFormatError) Error() string {
	return fmt.Sprintf("cannot walk into field %q", e.field)
}

// walkFields follows a dot-separated path of field names and slice indexes
// from comp.
func (m *Monitor) walkFields(
	comp interface{},
	fields string,
) (reflect.Value, error) {
	elem := reflect.ValueOf(comp)

	fieldNames := strings.Split(fields, ".")

	for len(fieldNames) > 0 {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface:
			elem = elem.Elem()
		case reflect.Struct:
			elem = elem.FieldByName(fieldNames[0])
			if !elem.IsValid() {
				return elem, fieldFormatError{field: fieldNames[0]}
			}

			fieldNames = fieldNames[1:]
		case reflect.Slice:
			index, err := strconv.Atoi(fieldNames[0])
			if err != nil || index < 0 || index >= elem.Len() {
				return elem, fieldFormatError{field: fieldNames[0]}
			}

			elem = elem.Index(index)
			fieldNames = fieldNames[1:]
		default:
			return elem, fieldFormatError{field: fieldNames[0]}
		}
	}

	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	return elem, nil
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) hooking.Named {
	var component hooking.Named
	for _, c := range m.components {
		if c.Name() == name {
			component = c
		}
	}

	if component == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Component not found"))
		dieOnErr(err)
	}

	return component
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]ProgressBarStatus, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.Status())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second
	if s := r.URL.Query().Get("seconds"); s != "" {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil || secs <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Error: invalid seconds %q", s)

			return
		}

		duration = time.Duration(secs * float64(time.Second))
	}

	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(duration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
