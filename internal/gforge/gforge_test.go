package gforge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trackbridge/trackbridge/internal/migrate"
)

var _ migrate.Source = (*Session)(nil)

const testNS = "http://gforge.example.org/xmlcompatibility/soap5"

func soapResponse(op, inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns1="` + testNS + `">
<SOAP-ENV:Body><ns1:` + op + `Response>` + inner + `</ns1:` + op + `Response></SOAP-ENV:Body></SOAP-ENV:Envelope>`
}

const faultResponse = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/">
<SOAP-ENV:Body><SOAP-ENV:Fault><faultcode>SOAP-ENV:Server</faultcode><faultstring>Invalid Session</faultstring></SOAP-ENV:Fault></SOAP-ENV:Body>
</SOAP-ENV:Envelope>`

// fakeGForge answers by operation name, taken from the SOAPAction header.
type fakeGForge struct {
	responses map[string]string
	bodies    map[string]string
}

func (f *fakeGForge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := r.Header.Get("SOAPAction")
	op := action[strings.LastIndex(action, "#")+1:]
	body, _ := io.ReadAll(r.Body)
	f.bodies[op] = string(body)

	resp, ok := f.responses[op]
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(faultResponse))
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(soapResponse(op, resp)))
}

func newFake(t *testing.T, responses map[string]string) (*Client, *fakeGForge) {
	t.Helper()
	fake := &fakeGForge{responses: responses, bodies: make(map[string]string)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	c := NewClient(server.URL, testNS)
	c.RetryDelay = time.Millisecond
	return c, fake
}

func TestOpenSession(t *testing.T) {
	c, fake := newFake(t, map[string]string{
		"login":                `<return>1234:abcdef</return>`,
		"getProjectByUnixName": `<return><project_id>42</project_id><unix_name>irods</unix_name></return>`,
	})

	s, err := Open(context.Background(), c, "terrell", "s3cret&<", "irods")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.UserID() != 1234 {
		t.Errorf("UserID = %d, want 1234", s.UserID())
	}
	if s.Project().ID != 42 {
		t.Errorf("Project.ID = %d, want 42", s.Project().ID)
	}
	if !strings.Contains(fake.bodies["login"], "<passwd>s3cret&amp;&lt;</passwd>") {
		t.Errorf("password not escaped in request: %s", fake.bodies["login"])
	}
	if !strings.Contains(fake.bodies["getProjectByUnixName"], "<session_ser>1234:abcdef</session_ser>") {
		t.Errorf("session not passed: %s", fake.bodies["getProjectByUnixName"])
	}
}

func TestTrackersAndElements(t *testing.T) {
	c, _ := newFake(t, map[string]string{
		"getTrackers": `<return>
			<item><tracker_id>7</tracker_id><name>Bugs</name><item_total>120</item_total></item>
			<item><tracker_id>8</tracker_id><name>Features</name><item_total>3</item_total></item>
		</return>`,
		"getTrackerFull": `<return><tracker_id>7</tracker_id>
			<extra_field_elements>
				<item><element_id>101</element_id><element_name>Release 2.1</element_name></item>
				<item><element_id>102</element_id><element_name>Blocker</element_name></item>
			</extra_field_elements></return>`,
	})
	ctx := context.Background()

	trackers, err := c.Trackers(ctx, "1:x", 42)
	if err != nil {
		t.Fatalf("Trackers failed: %v", err)
	}
	if len(trackers) != 2 || trackers[0].ID != 7 || trackers[0].ItemTotal != 120 || trackers[1].Name != "Features" {
		t.Errorf("Trackers = %+v", trackers)
	}

	elems, err := c.TrackerFull(ctx, "1:x", 7)
	if err != nil {
		t.Fatalf("TrackerFull failed: %v", err)
	}
	if len(elems) != 2 || elems[1].ID != 102 || elems[1].Name != "Blocker" {
		t.Errorf("TrackerFull = %+v", elems)
	}
}

func TestTrackerItemsFull(t *testing.T) {
	c, fake := newFake(t, map[string]string{
		"getTrackerItemsFullByQueryId": `<return><item>
			<tracker_item_id>5</tracker_item_id>
			<summary>Crash on &amp;quot;iput&amp;quot;</summary>
			<details>Line one</details>
			<submitted_by>12</submitted_by>
			<open_date>2009-03-01 10:00:00</open_date>
			<close_date xsi:nil="true" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"/>
			<assignees><item><assignee>100</assignee></item></assignees>
			<extra_field_data><item><field_data>101</field_data></item><item><field_data></field_data></item></extra_field_data>
			<messages><item><submitted_by>13</submitted_by><adddate>2009-03-02</adddate><body>me too</body></item></messages>
			<scm_commits><item><user_id>14</user_id></item></scm_commits>
		</item></return>`,
	})

	items, err := c.TrackerItemsFullByQueryID(context.Background(), "1:x", 9, 50, 100)
	if err != nil {
		t.Fatalf("TrackerItemsFullByQueryID failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	it := items[0]
	if it.ID != 5 || it.SubmittedBy != 12 || it.Summary != "Crash on &quot;iput&quot;" {
		t.Errorf("item = %+v", it)
	}
	if it.IsClosed() {
		t.Error("nil close_date should mean open")
	}
	if len(it.Assignees) != 1 || it.Assignees[0].UserID != 100 {
		t.Errorf("Assignees = %+v", it.Assignees)
	}
	if len(it.ExtraFields) != 2 || it.ExtraFields[0].Value != "101" || it.ExtraFields[1].Value != "" {
		t.Errorf("ExtraFields = %+v", it.ExtraFields)
	}
	if len(it.Messages) != 1 || it.Messages[0].Body != "me too" || it.Messages[0].AddDate != "2009-03-02" {
		t.Errorf("Messages = %+v", it.Messages)
	}
	if got := it.ReferencedUsers(); len(got) != 4 {
		t.Errorf("ReferencedUsers = %v, want 4 users", got)
	}
	body := fake.bodies["getTrackerItemsFullByQueryId"]
	for _, want := range []string{"<tracker_query_id>9</tracker_query_id>", "<rows>50</rows>", "<offset>100</offset>"} {
		if !strings.Contains(body, want) {
			t.Errorf("request missing %s: %s", want, body)
		}
	}
}

func TestQueryLifecycle(t *testing.T) {
	c, fake := newFake(t, map[string]string{
		"addTrackerQuery":    `<return>77</return>`,
		"deleteTrackerQuery": `<return>true</return>`,
	})
	ctx := context.Background()

	id, err := c.AddTrackerQuery(ctx, "3:x", 7, 3, "GitHub Migration - 20260101-120000")
	if err != nil {
		t.Fatalf("AddTrackerQuery failed: %v", err)
	}
	if id != 77 {
		t.Errorf("query id = %d, want 77", id)
	}
	if !strings.Contains(fake.bodies["addTrackerQuery"], "<query_name>GitHub Migration - 20260101-120000</query_name>") {
		t.Errorf("query name not sent: %s", fake.bodies["addTrackerQuery"])
	}
	if err := c.DeleteTrackerQuery(ctx, "3:x", id); err != nil {
		t.Errorf("DeleteTrackerQuery failed: %v", err)
	}
}

func TestUserArray(t *testing.T) {
	c, fake := newFake(t, map[string]string{
		"getUserArray": `<return>
			<item><user_id>12</user_id><unix_name>alice</unix_name><email>alice@example.org</email></item>
		</return>`,
	})

	users, err := c.UserArray(context.Background(), "1:x", []int{12, 99})
	if err != nil {
		t.Fatalf("UserArray failed: %v", err)
	}
	if len(users) != 1 || users[0].UnixName != "alice" {
		t.Errorf("users = %+v", users)
	}
	if !strings.Contains(fake.bodies["getUserArray"], "<user_ids><item>12</item><item>99</item></user_ids>") {
		t.Errorf("ids not encoded: %s", fake.bodies["getUserArray"])
	}
}

func TestFault(t *testing.T) {
	c, _ := newFake(t, map[string]string{})

	_, err := c.Trackers(context.Background(), "bad", 1)
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("expected *Fault, got %v", err)
	}
	if fault.String != "Invalid Session" {
		t.Errorf("faultstring = %q", fault.String)
	}
}

func TestReadRetriesOnServerError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(soapResponse("getTrackers", `<return></return>`)))
	}))
	defer server.Close()

	c := NewClient(server.URL, testNS)
	c.RetryDelay = time.Millisecond
	if _, err := c.Trackers(context.Background(), "1:x", 1); err != nil {
		t.Fatalf("Trackers failed: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, testNS)
	c.RetryDelay = time.Millisecond
	if _, err := c.AddTrackerQuery(context.Background(), "1:x", 1, 1, "q"); err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestSessionUserID(t *testing.T) {
	if id, err := SessionUserID("1234:abc"); err != nil || id != 1234 {
		t.Errorf("SessionUserID = %d, %v", id, err)
	}
	if _, err := SessionUserID("garbage"); err == nil {
		t.Error("expected error for malformed token")
	}
}
