package service

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medbill/internal/domain"
	"medbill/internal/extract"
	"medbill/internal/mineru"
	"medbill/internal/port"
	"medbill/internal/structurer"
	"medbill/mocks"
)

func buildResultArchive(t *testing.T, blocks []extract.Block) []byte {
	t.Helper()
	listJSON, err := json.Marshal(blocks)
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("invoice_content_list_v2.json")
	require.NoError(t, err)
	_, err = w.Write(listJSON)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func emptyArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("layout.json")
	require.NoError(t, err)
	_, err = w.Write([]byte("{}"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestService(parser *mocks.MockBatchParser, str *mocks.MockStructurer, artifacts *mocks.MockArtifactStore) *PipelineService {
	return NewPipelineService(parser, str, artifacts, PipelineConfig{Concurrency: 2})
}

func anyArtifactPut(store *mocks.MockArtifactStore) {
	store.On("Put", mock.Anything, mock.Anything).Return(nil)
}

func TestConvert_MixedOutcomesPreserveInputOrder(t *testing.T) {
	parser := new(mocks.MockBatchParser)
	str := new(mocks.MockStructurer)
	store := new(mocks.MockArtifactStore)
	anyArtifactPut(store)

	files := []port.FileInput{
		{Name: "a.pdf", Data: []byte("pdf-a")},
		{Name: "b.pdf", Data: []byte("pdf-b")},
	}
	batch := &port.Batch{ID: "batch-1", Files: []port.BatchFile{{Name: "a.pdf"}, {Name: "b.pdf"}}}

	parser.On("Submit", mock.Anything, files).Return(batch, nil)
	parser.On("Poll", mock.Anything, batch).Return(map[string]port.FileStatus{
		"a.pdf": {FileName: "a.pdf", State: port.StateDone, ZipURL: "http://x/a.zip"},
		"b.pdf": {FileName: "b.pdf", State: port.StateFailed, ErrMsg: "unreadable pdf"},
	}, nil)

	archive := buildResultArchive(t, []extract.Block{
		{Type: extract.BlockText, Text: "总金额：80.00", PageIdx: 0},
		{Type: extract.BlockPageFooter, Text: "收款单位（章）：宣武医院", PageIdx: 0},
	})
	parser.On("Fetch", mock.Anything, mock.MatchedBy(func(st port.FileStatus) bool {
		return st.FileName == "a.pdf"
	})).Return(archive, nil)

	payee := "宣武医院"
	total := decimal.NewFromFloat(80.00)
	str.On("Structure", mock.Anything, mock.MatchedBy(func(text string) bool {
		// footer-positioned payee must reach the model
		return strings.Contains(text, "收款单位（章）：宣武医院")
	})).Return(&port.StructureOutput{
		Record: &domain.InvoiceRecord{TotalAmount: &total, Payee: &payee},
	}, nil)

	results := newTestService(parser, str, store).Convert(context.Background(), files)

	require.Len(t, results, 2)
	assert.Equal(t, "a.pdf", results[0].Filename)
	assert.Equal(t, "b.pdf", results[1].Filename)

	require.NotNil(t, results[0].Data)
	assert.Nil(t, results[0].Error)
	assert.Equal(t, "宣武医院", *results[0].Data.Payee)

	assert.Nil(t, results[1].Data)
	require.NotNil(t, results[1].Error)
	assert.Equal(t, domain.StageParse, results[1].Error.Stage)
	assert.Equal(t, domain.CodeParseFailed, results[1].Error.Code)
	assert.Contains(t, results[1].Error.Message, "unreadable pdf")

	parser.AssertExpectations(t)
	str.AssertExpectations(t)
}

func TestConvert_SubmitFailureFailsAllFiles(t *testing.T) {
	parser := new(mocks.MockBatchParser)
	files := []port.FileInput{{Name: "a.pdf"}, {Name: "b.pdf"}, {Name: "c.pdf"}}

	parser.On("Submit", mock.Anything, files).
		Return(nil, &mineru.SubmissionError{Err: errors.New("quota exceeded")})

	results := newTestService(parser, new(mocks.MockStructurer), new(mocks.MockArtifactStore)).
		Convert(context.Background(), files)

	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, files[i].Name, res.Filename)
		require.NotNil(t, res.Error)
		assert.Equal(t, domain.StageSubmit, res.Error.Stage)
		assert.Equal(t, domain.CodeSubmitFailed, res.Error.Code)
	}
	parser.AssertNotCalled(t, "Poll", mock.Anything, mock.Anything)
}

func TestConvert_PollTimeoutStillProcessesTerminalFiles(t *testing.T) {
	parser := new(mocks.MockBatchParser)
	str := new(mocks.MockStructurer)
	store := new(mocks.MockArtifactStore)
	anyArtifactPut(store)

	files := []port.FileInput{{Name: "done.pdf"}, {Name: "slow.pdf"}}
	batch := &port.Batch{ID: "batch-1", Files: []port.BatchFile{{Name: "done.pdf"}, {Name: "slow.pdf"}}}

	parser.On("Submit", mock.Anything, files).Return(batch, nil)
	parser.On("Poll", mock.Anything, batch).Return(
		map[string]port.FileStatus{
			"done.pdf": {FileName: "done.pdf", State: port.StateDone, ZipURL: "http://x/done.zip"},
			"slow.pdf": {FileName: "slow.pdf", State: port.StateRunning},
		},
		&mineru.PollTimeoutError{BatchID: "batch-1", Pending: []string{"slow.pdf"}},
	)
	parser.On("Fetch", mock.Anything, mock.Anything).
		Return(buildResultArchive(t, []extract.Block{{Type: extract.BlockText, Text: "总金额：80.00"}}), nil)

	total := decimal.NewFromFloat(80.00)
	str.On("Structure", mock.Anything, mock.Anything).
		Return(&port.StructureOutput{Record: &domain.InvoiceRecord{TotalAmount: &total}}, nil)

	results := newTestService(parser, str, store).Convert(context.Background(), files)

	require.NotNil(t, results[0].Data)
	assert.Nil(t, results[0].Error)

	require.NotNil(t, results[1].Error)
	assert.Equal(t, domain.StagePoll, results[1].Error.Stage)
	assert.Equal(t, domain.CodePollTimeout, results[1].Error.Code)
}

func TestConvert_FetchFailureIsolatedToFile(t *testing.T) {
	parser := new(mocks.MockBatchParser)
	str := new(mocks.MockStructurer)
	store := new(mocks.MockArtifactStore)
	anyArtifactPut(store)

	files := []port.FileInput{{Name: "good.pdf"}, {Name: "bad.pdf"}}
	batch := &port.Batch{ID: "batch-1"}

	parser.On("Submit", mock.Anything, files).Return(batch, nil)
	parser.On("Poll", mock.Anything, batch).Return(map[string]port.FileStatus{
		"good.pdf": {FileName: "good.pdf", State: port.StateDone, ZipURL: "http://x/good.zip"},
		"bad.pdf":  {FileName: "bad.pdf", State: port.StateDone, ZipURL: "http://x/bad.zip"},
	}, nil)

	parser.On("Fetch", mock.Anything, mock.MatchedBy(func(st port.FileStatus) bool {
		return st.FileName == "good.pdf"
	})).Return(buildResultArchive(t, []extract.Block{{Type: extract.BlockText, Text: "正文"}}), nil)
	parser.On("Fetch", mock.Anything, mock.MatchedBy(func(st port.FileStatus) bool {
		return st.FileName == "bad.pdf"
	})).Return(nil, &mineru.FetchError{FileName: "bad.pdf", Err: errors.New("404")})

	str.On("Structure", mock.Anything, mock.Anything).
		Return(&port.StructureOutput{Record: &domain.InvoiceRecord{}}, nil)

	results := newTestService(parser, str, store).Convert(context.Background(), files)

	assert.Nil(t, results[0].Error)
	require.NotNil(t, results[1].Error)
	assert.Equal(t, domain.StageFetch, results[1].Error.Stage)
	assert.Equal(t, domain.CodeFetchFailed, results[1].Error.Code)
}

func TestConvert_NoContentArchive(t *testing.T) {
	parser := new(mocks.MockBatchParser)
	str := new(mocks.MockStructurer)
	store := new(mocks.MockArtifactStore)
	anyArtifactPut(store)

	files := []port.FileInput{{Name: "a.pdf"}}
	batch := &port.Batch{ID: "batch-1"}

	parser.On("Submit", mock.Anything, files).Return(batch, nil)
	parser.On("Poll", mock.Anything, batch).Return(map[string]port.FileStatus{
		"a.pdf": {FileName: "a.pdf", State: port.StateDone, ZipURL: "http://x/a.zip"},
	}, nil)
	parser.On("Fetch", mock.Anything, mock.Anything).Return(emptyArchive(t), nil)

	results := newTestService(parser, str, store).Convert(context.Background(), files)

	require.NotNil(t, results[0].Error)
	assert.Equal(t, domain.StageExtract, results[0].Error.Stage)
	assert.Equal(t, domain.CodeNoContent, results[0].Error.Code)
	str.AssertNotCalled(t, "Structure", mock.Anything, mock.Anything)
}

func TestConvert_StructuringFailureClassification(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "unparseable model output",
			err:      &structurer.ResponseParseError{Raw: "抱歉", Err: errors.New("invalid character")},
			wantCode: domain.CodeBadModelOutput,
		},
		{
			name:     "schema mismatch",
			err:      &domain.FieldTypeError{Label: "总金额", Internal: "total_amount", Want: domain.FieldAmount, Err: errors.New("not a number")},
			wantCode: domain.CodeSchemaMismatch,
		},
		{
			name:     "transport failure",
			err:      errors.New("connection refused"),
			wantCode: domain.CodeStructFailed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parser := new(mocks.MockBatchParser)
			str := new(mocks.MockStructurer)
			store := new(mocks.MockArtifactStore)
			anyArtifactPut(store)

			files := []port.FileInput{{Name: "a.pdf"}}
			batch := &port.Batch{ID: "batch-1"}

			parser.On("Submit", mock.Anything, files).Return(batch, nil)
			parser.On("Poll", mock.Anything, batch).Return(map[string]port.FileStatus{
				"a.pdf": {FileName: "a.pdf", State: port.StateDone, ZipURL: "http://x/a.zip"},
			}, nil)
			parser.On("Fetch", mock.Anything, mock.Anything).
				Return(buildResultArchive(t, []extract.Block{{Type: extract.BlockText, Text: "正文"}}), nil)
			str.On("Structure", mock.Anything, mock.Anything).Return(nil, tc.err)

			results := newTestService(parser, str, store).Convert(context.Background(), files)

			require.NotNil(t, results[0].Error)
			assert.Equal(t, domain.StageStructure, results[0].Error.Stage)
			assert.Equal(t, tc.wantCode, results[0].Error.Code)
		})
	}
}

func TestConvert_ArtifactStoreFailureIsBestEffort(t *testing.T) {
	parser := new(mocks.MockBatchParser)
	str := new(mocks.MockStructurer)
	store := new(mocks.MockArtifactStore)
	store.On("Put", mock.Anything, mock.Anything).Return(errors.New("bucket unavailable"))

	files := []port.FileInput{{Name: "a.pdf"}}
	batch := &port.Batch{ID: "batch-1"}

	parser.On("Submit", mock.Anything, files).Return(batch, nil)
	parser.On("Poll", mock.Anything, batch).Return(map[string]port.FileStatus{
		"a.pdf": {FileName: "a.pdf", State: port.StateDone, ZipURL: "http://x/a.zip"},
	}, nil)
	parser.On("Fetch", mock.Anything, mock.Anything).
		Return(buildResultArchive(t, []extract.Block{{Type: extract.BlockText, Text: "正文"}}), nil)
	str.On("Structure", mock.Anything, mock.Anything).
		Return(&port.StructureOutput{Record: &domain.InvoiceRecord{}}, nil)

	results := newTestService(parser, str, store).Convert(context.Background(), files)

	assert.Nil(t, results[0].Error)
	assert.NotNil(t, results[0].Data)
}

func TestConvert_EmptyInput(t *testing.T) {
	parser := new(mocks.MockBatchParser)
	results := newTestService(parser, new(mocks.MockStructurer), new(mocks.MockArtifactStore)).
		Convert(context.Background(), nil)
	assert.Empty(t, results)
	parser.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestConvertOne(t *testing.T) {
	parser := new(mocks.MockBatchParser)
	str := new(mocks.MockStructurer)
	store := new(mocks.MockArtifactStore)
	anyArtifactPut(store)

	file := port.FileInput{Name: "a.pdf", Data: []byte("pdf")}
	batch := &port.Batch{ID: "batch-1"}

	parser.On("Submit", mock.Anything, []port.FileInput{file}).Return(batch, nil)
	parser.On("Poll", mock.Anything, batch).Return(map[string]port.FileStatus{
		"a.pdf": {FileName: "a.pdf", State: port.StateDone, ZipURL: "http://x/a.zip"},
	}, nil)
	parser.On("Fetch", mock.Anything, mock.Anything).
		Return(buildResultArchive(t, []extract.Block{{Type: extract.BlockText, Text: "正文"}}), nil)

	total := decimal.NewFromFloat(80)
	str.On("Structure", mock.Anything, mock.Anything).
		Return(&port.StructureOutput{Record: &domain.InvoiceRecord{TotalAmount: &total}}, nil)

	res := newTestService(parser, str, store).ConvertOne(context.Background(), file)

	assert.Equal(t, "a.pdf", res.Filename)
	require.NotNil(t, res.Data)
	assert.Equal(t, "80.00", res.Data.TotalAmount.StringFixed(2))
}

func TestParseArchive_StoresArchive(t *testing.T) {
	parser := new(mocks.MockBatchParser)
	store := new(mocks.MockArtifactStore)

	file := port.FileInput{Name: "a.pdf", Data: []byte("pdf")}
	batch := &port.Batch{ID: "batch-1"}
	archive := []byte("zip-bytes")

	parser.On("Submit", mock.Anything, []port.FileInput{file}).Return(batch, nil)
	parser.On("Poll", mock.Anything, batch).Return(map[string]port.FileStatus{
		"a.pdf": {FileName: "a.pdf", State: port.StateDone, ZipURL: "http://x/a.zip"},
	}, nil)
	parser.On("Fetch", mock.Anything, mock.Anything).Return(archive, nil)

	var stored port.Artifact
	store.On("Put", mock.Anything, mock.MatchedBy(func(a port.Artifact) bool {
		stored = a
		return true
	})).Return(nil)

	key, err := newTestService(parser, new(mocks.MockStructurer), store).
		ParseArchive(context.Background(), file)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "debug/"))
	assert.True(t, strings.HasSuffix(key, ".zip"))
	assert.Equal(t, key, stored.Key)
	assert.Equal(t, archive, stored.Data)
}

func TestParseArchive_FailedFile(t *testing.T) {
	parser := new(mocks.MockBatchParser)

	file := port.FileInput{Name: "a.pdf"}
	batch := &port.Batch{ID: "batch-1"}

	parser.On("Submit", mock.Anything, []port.FileInput{file}).Return(batch, nil)
	parser.On("Poll", mock.Anything, batch).Return(map[string]port.FileStatus{
		"a.pdf": {FileName: "a.pdf", State: port.StateFailed, ErrMsg: "unreadable pdf"},
	}, nil)

	_, err := newTestService(parser, new(mocks.MockStructurer), new(mocks.MockArtifactStore)).
		ParseArchive(context.Background(), file)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable pdf")
}
