package errors

import (
	"fmt"
	"net/http"
)

// Code 业务错误码及对应的 HTTP 状态
type Code struct {
	Code    int
	Status  int
	Message string
}

const (
	Success = 0

	// 通用 (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// 认证 (2000-2999)
	ErrAuthInvalidCredentials = 2000
	ErrAuthInvalidToken       = 2001
	ErrAuthTokenExpired       = 2002
	ErrAuthWeakPassword       = 2003
	ErrAuthMissingCredentials = 2004

	// 用户 (3000-3999)
	ErrUserNotFound     = 3000
	ErrUserExists       = 3001
	ErrUserInvalidInput = 3002

	// 知识库 (4000-4999)
	ErrKBFileNotFound       = 4000
	ErrKBInvalidFileType    = 4001
	ErrKBFileTooLarge       = 4002
	ErrKBStorageFailed      = 4003
	ErrKBInvalidChunkConfig = 4004
	ErrKBChunkingFailed     = 4005
	ErrKBEncodingFailed     = 4006
	ErrKBIndexNotBuilt      = 4007
	ErrKBIngestFailed       = 4008
	ErrKBEmbeddingFailed    = 4009
	ErrKBVectorStoreFailed  = 4010
	ErrKBPolicyDenied       = 4011
	ErrKBNoDocuments        = 4012

	// 会话 (5000-5999)
	ErrConversationNotFound = 5000
	ErrThreadNotFound       = 5001
	ErrInvalidMessageRole   = 5002
	ErrChatFailed           = 5003

	// 管理 (6000-6999)
	ErrSettingInvalid = 6000
)

var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	ErrAuthInvalidCredentials: {ErrAuthInvalidCredentials, http.StatusUnauthorized, "Invalid username or password"},
	ErrAuthInvalidToken:       {ErrAuthInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
	ErrAuthTokenExpired:       {ErrAuthTokenExpired, http.StatusUnauthorized, "Token expired"},
	ErrAuthWeakPassword:       {ErrAuthWeakPassword, http.StatusBadRequest, "Password must be at least 8 characters"},
	ErrAuthMissingCredentials: {ErrAuthMissingCredentials, http.StatusUnauthorized, "Missing credentials"},

	ErrUserNotFound:     {ErrUserNotFound, http.StatusNotFound, "User not found"},
	ErrUserExists:       {ErrUserExists, http.StatusConflict, "User already exists"},
	ErrUserInvalidInput: {ErrUserInvalidInput, http.StatusBadRequest, "Invalid user input"},

	ErrKBFileNotFound:       {ErrKBFileNotFound, http.StatusNotFound, "Knowledge base file not found"},
	ErrKBInvalidFileType:    {ErrKBInvalidFileType, http.StatusBadRequest, "Unsupported file type"},
	ErrKBFileTooLarge:       {ErrKBFileTooLarge, http.StatusBadRequest, "File size exceeds limit"},
	ErrKBStorageFailed:      {ErrKBStorageFailed, http.StatusInternalServerError, "Storage operation failed"},
	ErrKBInvalidChunkConfig: {ErrKBInvalidChunkConfig, http.StatusBadRequest, "Invalid chunking config"},
	ErrKBChunkingFailed:     {ErrKBChunkingFailed, http.StatusUnprocessableEntity, "Chunking failed"},
	ErrKBEncodingFailed:     {ErrKBEncodingFailed, http.StatusUnprocessableEntity, "File is not valid UTF-8"},
	ErrKBIndexNotBuilt:      {ErrKBIndexNotBuilt, http.StatusConflict, "Vector index has not been built"},
	ErrKBIngestFailed:       {ErrKBIngestFailed, http.StatusInternalServerError, "Ingestion failed"},
	ErrKBEmbeddingFailed:    {ErrKBEmbeddingFailed, http.StatusBadGateway, "Embedding generation failed"},
	ErrKBVectorStoreFailed:  {ErrKBVectorStoreFailed, http.StatusInternalServerError, "Vector store operation failed"},
	ErrKBPolicyDenied:       {ErrKBPolicyDenied, http.StatusForbidden, "Operation not allowed by knowledge base policy"},
	ErrKBNoDocuments:        {ErrKBNoDocuments, http.StatusBadRequest, "No documents to ingest"},

	ErrConversationNotFound: {ErrConversationNotFound, http.StatusNotFound, "Conversation not found"},
	ErrThreadNotFound:       {ErrThreadNotFound, http.StatusNotFound, "Thread not found"},
	ErrInvalidMessageRole:   {ErrInvalidMessageRole, http.StatusBadRequest, "Invalid message role"},
	ErrChatFailed:           {ErrChatFailed, http.StatusBadGateway, "Chat model request failed"},

	ErrSettingInvalid: {ErrSettingInvalid, http.StatusBadRequest, "Invalid setting value"},
}

// GetCode 查找错误码，未知错误码按内部错误处理
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus 错误码对应的 HTTP 状态
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage 错误码对应的提示
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError 是否为 4xx 错误
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// FormatError 拼接提示与详情
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
