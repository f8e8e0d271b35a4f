package http

import (
	"io"
	"net/http"

	"exam-flow-service/internal/app"
	"exam-flow-service/internal/domain"
	"exam-flow-service/internal/ingest"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// API exposes the exam-flow use cases over REST.
type API struct {
	service *app.ExamService
	log     *zap.Logger
}

func NewAPI(service *app.ExamService, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{service: service, log: log}
}

// NewRouter wires REST routes, the exam websocket and health checks.
func NewRouter(api *API, ws *WSHandler, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/ws/exam", gin.WrapF(ws.ServeWS))

	v1 := r.Group("/api")
	{
		v1.GET("/candidates/:id/eligibility", api.eligibility)
		v1.GET("/candidates/:id/result", api.result)
		v1.POST("/exams/start", api.start)
		v1.GET("/attempts/:id/paper", api.paper)
		v1.POST("/attempts/:id/submit", api.submit)
	}

	admin := r.Group("/api/admin")
	{
		admin.POST("/slots", api.createSlot)
		admin.DELETE("/slots/:id", api.deleteSlot)
		admin.POST("/attempts/:id/reassign", api.reassign)
		admin.PUT("/candidates/:id/practical-marks", api.practicalMarks)
		admin.POST("/questions/import", api.importQuestions)
	}
	return r
}

type startRequest struct {
	CandidateID string `json:"candidateId" binding:"required"`
	PaperType   string `json:"paperType" binding:"required"`
	SlotID      string `json:"slotId"`
}

type submitRequest struct {
	Answers []domain.AnswerSubmission `json:"answers"`
}

func (a *API) eligibility(c *gin.Context) {
	res, err := a.service.ResolveActivePaper(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) result(c *gin.Context) {
	res, err := a.service.GetCandidateResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, a.log, domain.Validationf("invalid start request: %v", err))
		return
	}
	paperType, err := domain.ParsePaperType(req.PaperType)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	attempt, err := a.service.StartExam(c.Request.Context(), req.CandidateID, paperType, req.SlotID)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

func (a *API) paper(c *gin.Context) {
	paper, err := a.service.GetExamPaper(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, paper)
}

func (a *API) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, a.log, domain.Validationf("invalid submit request: %v", err))
		return
	}
	res, err := a.service.SubmitExam(c.Request.Context(), c.Param("id"), req.Answers)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) createSlot(c *gin.Context) {
	var in app.CreateSlotInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, a.log, domain.Validationf("invalid slot: %v", err))
		return
	}
	created, err := a.service.CreateSlot(c.Request.Context(), in)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a *API) deleteSlot(c *gin.Context) {
	if err := a.service.DeleteSlot(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, a.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) reassign(c *gin.Context) {
	if err := a.service.ReassignAttempt(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, a.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) practicalMarks(c *gin.Context) {
	var in app.PracticalMarksInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, a.log, domain.Validationf("invalid practical marks: %v", err))
		return
	}
	marks, err := a.service.RecordPracticalMarks(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, marks)
}

// importQuestions accepts a multipart "file" field or a raw CSV body.
func (a *API) importQuestions(c *gin.Context) {
	var body io.Reader = c.Request.Body
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			writeError(c, a.log, domain.Validationf("open upload: %v", err))
			return
		}
		defer f.Close()
		body = f
	}

	summary, err := ingest.ImportCSV(c.Request.Context(), a.service, body)
	if err != nil {
		writeError(c, a.log, domain.Validationf("%v", err))
		return
	}
	c.JSON(http.StatusOK, summary)
}
