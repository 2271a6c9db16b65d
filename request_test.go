package netconf

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestEncoding(t *testing.T) {
	const (
		rpcOpen  = `<rpc xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="1">`
		rpcClose = `</rpc>`
	)

	want := map[Kind]string{
		KindGeneric:    `<restart xmlns="urn:example:system"><delay>5</delay></restart>`,
		KindGenericXML: `<get-sessions xmlns="urn:example:sessions"/>`,
		KindGetConfig: `<get-config xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
			`<source><running/></source><filter type="subtree"><interfaces/></filter></get-config>`,
		KindGet: `<get xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
			`<filter type="xpath" select="/interfaces"></filter></get>`,
		KindEditConfig: `<edit-config xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
			`<target><candidate/></target>` +
			`<default-operation>merge</default-operation>` +
			`<test-option>test-then-set</test-option>` +
			`<error-option>rollback-on-error</error-option>` +
			"<config>\n<system/>\n</config></edit-config>",
		KindCopyConfig: `<copy-config xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
			`<target><url>file://a.cfg</url></target><source><config/></source></copy-config>`,
		KindDeleteConfig: `<delete-config xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
			`<target><url>file://old.cfg</url></target></delete-config>`,
		KindLock:   `<lock xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><target><candidate/></target></lock>`,
		KindUnlock: `<unlock xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><target><candidate/></target></unlock>`,
		KindGetSchema: `<get-schema xmlns="urn:ietf:params:xml:ns:yang:ietf-netconf-monitoring">` +
			`<identifier>ietf-interfaces</identifier><version>2018-02-20</version><format>yang</format></get-schema>`,
		KindCommit: `<commit xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
			`<confirmed></confirmed><confirm-timeout>60</confirm-timeout><persist>p1</persist><persist-id>p0</persist-id></commit>`,
		KindDiscardChanges: `<discard-changes xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"></discard-changes>`,
		KindCancelCommit: `<cancel-commit xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
			`<persist-id>p1</persist-id></cancel-commit>`,
		KindValidate: `<validate xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
			`<source><url>file://v.cfg</url></source></validate>`,
		KindCreateSubscription: `<create-subscription xmlns="urn:ietf:params:xml:ns:netconf:notification:1.0">` +
			`<stream>NETCONF</stream>` +
			`<filter type="subtree"><netconf-config-change/></filter>` +
			`<startTime>2023-06-07T18:31:48Z</startTime>` +
			`<stopTime>2023-06-07T19:31:48Z</stopTime></create-subscription>`,
		KindKillSession: `<kill-session xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><session-id>42</session-id></kill-session>`,
	}

	f := NewFactory()
	for _, tc := range allKinds {
		t.Run(tc.kind.String(), func(t *testing.T) {
			req, err := tc.build(f, DupAndOwn)
			require.NoError(t, err)
			defer FreeRequest(req)

			out, err := xml.Marshal(&rpcMessage{MessageID: 1, Operation: req})
			require.NoError(t, err)
			assert.Equal(t, rpcOpen+want[tc.kind]+rpcClose, string(out))
		})
	}
}

func TestRPCMessageNilOperation(t *testing.T) {
	_, err := xml.Marshal(&rpcMessage{MessageID: 1})
	require.Error(t, err)
}

func TestGenericXMLStandalone(t *testing.T) {
	req, err := NewFactory().NewGenericXMLRequest(
		[]byte(`<?xml version="1.0"?><get-sessions xmlns="urn:example:sessions"><all/></get-sessions>`),
		ConstReference,
	)
	require.NoError(t, err)
	defer FreeRequest(req)

	out, err := xml.Marshal(req)
	require.NoError(t, err)
	assert.Equal(t,
		`<get-sessions xmlns="urn:example:sessions"><all xmlns="urn:example:sessions"></all></get-sessions>`,
		string(out),
	)
}

func TestLockRequestKinds(t *testing.T) {
	f := NewFactory()

	lock := f.NewLockRequest(Running)
	unlock := f.NewUnlockRequest(Running)
	assert.Equal(t, KindLock, lock.Kind())
	assert.Equal(t, KindUnlock, unlock.Kind())
	assert.Equal(t, Running, unlock.Target())
}

func TestRequestAccessors(t *testing.T) {
	f := NewFactory()

	edit, err := f.NewEditConfigRequest(Candidate, ReplaceConfig, TestOnly, ContinueOnError, []byte("<system/>"), DupAndOwn)
	require.NoError(t, err)
	assert.Equal(t, Candidate, edit.Target())
	assert.Equal(t, ReplaceConfig, edit.DefaultOperation())
	assert.Equal(t, TestOnly, edit.TestOption())
	assert.Equal(t, ContinueOnError, edit.ErrorOption())
	FreeRequest(edit)
	assert.Empty(t, edit.Content())

	cp, err := f.NewCopyConfigRequest(Startup, []byte("file://dst"), Running, nil, ConstReference)
	require.NoError(t, err)
	assert.Equal(t, "file://dst", cp.TargetURL())
	assert.Equal(t, Running, cp.Source())
	assert.Empty(t, cp.SourceConfig())
	FreeRequest(cp)

	commit, err := f.NewCommitRequest(true, 120, nil, nil, ConstReference)
	require.NoError(t, err)
	assert.True(t, commit.Confirmed())
	assert.Equal(t, uint32(120), commit.ConfirmTimeout())
	FreeRequest(commit)

	kill := f.NewKillSessionRequest(7)
	assert.Equal(t, uint32(7), kill.SessionID())
	FreeRequest(kill)
}
