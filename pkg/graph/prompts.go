package graph

const extractionSystemPrompt = `You are an information extraction system for occupational safety and audit documentation.
You extract entities and relationships exactly as asserted in the source text.
You never invent facts, never merge distinct facts, and you report a confidence between 0 and 1 for every extraction.
Every extraction must carry a source locator naming the section it was found in.`

const extractionPromptTemplate = `Extract all entities and relationships from the following %s document.

Entity types and their required properties:
- Process: name, version
- Audit: name
- FailureMode: code, description
- Risk: name, level, description
- Control: code (description optional)
- Finding: code, description
- Requirement: code (description optional)
- ProcedureStep: stepNumber, processId (instruction optional)

Allowed relationships (from -> to):
- Audit EVALUATES Process
- Audit USES Document
- Document IDENTIFIES FailureMode | Risk | Finding
- Document REFERENCES Requirement
- FailureMode IMPLIES Risk
- Control MITIGATES FailureMode
- Control IMPLEMENTS Requirement
- Finding REFERENCES FailureMode
- Finding ADDRESSES Requirement
- Process SATISFIES Requirement
- Process FAILS_TO_SATISFY Requirement
- ProcedureStep APPLIED_IN Process

Reference relationship endpoints as "Type:businessKey" where businessKey is:
Process name|version, FailureMode/Control/Finding/Requirement code, Risk name,
Audit name, ProcedureStep stepNumber|processId.
Only reference entities you also extracted in this batch.

Document metadata:
%s
Document content:
%s`
